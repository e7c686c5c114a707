// Package storage persists portfolios and their positions to a JSON file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/optionfolio/optionfolio/internal/models"
)

// JSONStorage keeps the full portfolio set in memory and writes it through
// to a single JSON file on every mutation, using a temp-file rename so a
// crash mid-write never corrupts the store.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
}

type storageData struct {
	Portfolios  map[string]*models.Portfolio `json:"portfolios"`
	LastUpdated time.Time                    `json:"last_updated"`
}

// NewJSONStorage opens (or initializes) the store at the given path.
func NewJSONStorage(filepath string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: filepath,
		data: &storageData{
			Portfolios: make(map[string]*models.Portfolio),
		},
	}

	if _, err := os.Stat(filepath); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load reads the backing file into memory, replacing current state.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}

	data := &storageData{}
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	if data.Portfolios == nil {
		data.Portfolios = make(map[string]*models.Portfolio)
	}
	s.data = data
	return nil
}

// Save writes the in-memory state to disk atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// CreatePortfolio adds an empty portfolio with zero cash.
func (s *JSONStorage) CreatePortfolio(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Portfolios[name]; ok {
		return ErrPortfolioExists
	}
	s.data.Portfolios[name] = &models.Portfolio{Name: name}
	return s.saveLocked()
}

// DeletePortfolio removes a portfolio and every position it contains.
func (s *JSONStorage) DeletePortfolio(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Portfolios[name]; !ok {
		return ErrPortfolioNotFound
	}
	delete(s.data.Portfolios, name)
	return s.saveLocked()
}

// ListPortfolios returns portfolio names in stable sorted order.
func (s *JSONStorage) ListPortfolios() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data.Portfolios))
	for name := range s.data.Portfolios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPortfolio returns a copy of the named portfolio.
func (s *JSONStorage) GetPortfolio(name string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	return clonePortfolio(pf), nil
}

// GetCash returns the portfolio's cash balance.
func (s *JSONStorage) GetCash(name string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return 0, ErrPortfolioNotFound
	}
	return pf.Cash, nil
}

// UpdateCash sets the portfolio's cash balance. Negative balances are
// rejected; cash is collateral, not margin.
func (s *JSONStorage) UpdateCash(name string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("cash balance cannot be negative: %.2f", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return ErrPortfolioNotFound
	}
	pf.Cash = amount
	return s.saveLocked()
}

// StorePosition inserts or replaces a position by ID.
func (s *JSONStorage) StorePosition(portfolio string, pos *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, ok := s.data.Portfolios[portfolio]
	if !ok {
		return ErrPortfolioNotFound
	}

	stored := clonePosition(pos)
	for i, existing := range pf.Positions {
		if existing.ID == pos.ID {
			pf.Positions[i] = stored
			return s.saveLocked()
		}
	}
	pf.Positions = append(pf.Positions, stored)
	return s.saveLocked()
}

// GetPositions returns copies of all positions in the portfolio.
func (s *JSONStorage) GetPositions(name string) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return nil, ErrPortfolioNotFound
	}

	out := make([]*models.Position, len(pf.Positions))
	for i, p := range pf.Positions {
		out[i] = clonePosition(p)
	}
	return out, nil
}

// GetPositionByID returns a copy of a single position.
func (s *JSONStorage) GetPositionByID(name, id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	if p := pf.FindPosition(id); p != nil {
		return clonePosition(p), nil
	}
	return nil, ErrPositionNotFound
}

// DeletePosition removes a position from the portfolio.
func (s *JSONStorage) DeletePosition(name, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, ok := s.data.Portfolios[name]
	if !ok {
		return ErrPortfolioNotFound
	}
	for i, p := range pf.Positions {
		if p.ID == id {
			pf.Positions = append(pf.Positions[:i], pf.Positions[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrPositionNotFound
}

func clonePortfolio(pf *models.Portfolio) *models.Portfolio {
	out := &models.Portfolio{
		Name:      pf.Name,
		Cash:      pf.Cash,
		Positions: make([]*models.Position, len(pf.Positions)),
	}
	for i, p := range pf.Positions {
		out.Positions[i] = clonePosition(p)
	}
	return out
}

func clonePosition(p *models.Position) *models.Position {
	out := *p
	if p.Strike != nil {
		strike := *p.Strike
		out.Strike = &strike
	}
	if p.PnLSamples != nil {
		out.PnLSamples = make([]float64, len(p.PnLSamples))
		copy(out.PnLSamples, p.PnLSamples)
	}
	return &out
}
