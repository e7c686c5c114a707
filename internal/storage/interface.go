package storage

import "github.com/optionfolio/optionfolio/internal/models"

// Interface defines the contract for portfolio and position persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe and can call them from multiple goroutines.
//
// The provided JSONStorage implementation uses sync.RWMutex to serialize
// access and hands out copies, so callers never share memory with the store;
// edits only take effect through StorePosition/UpdateCash.
type Interface interface {
	// Portfolio management
	CreatePortfolio(name string) error
	DeletePortfolio(name string) error // cascades position deletion
	ListPortfolios() []string
	GetPortfolio(name string) (*models.Portfolio, error)

	// Cash balance
	GetCash(name string) (float64, error)
	UpdateCash(name string, amount float64) error

	// Position management (StorePosition upserts by position ID)
	StorePosition(portfolio string, pos *models.Position) error
	GetPositions(name string) ([]*models.Position, error)
	GetPositionByID(name, id string) (*models.Position, error)
	DeletePosition(name, id string) error

	// Data persistence
	Save() error
	Load() error
}

// NewStorage creates a new storage implementation (currently JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
