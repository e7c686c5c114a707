package models

// Portfolio is a named collection of positions plus a cash balance.
// Position order carries no meaning for the risk math; storage preserves
// insertion order only for display.
type Portfolio struct {
	Name      string      `json:"name"`
	Cash      float64     `json:"cash"`
	Positions []*Position `json:"positions"`
}

// FindPosition returns the position with the given ID, or nil.
func (pf *Portfolio) FindPosition(id string) *Position {
	for _, p := range pf.Positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}
