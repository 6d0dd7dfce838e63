// Package connection holds marketplace connection reference data: which
// external account an import talks to and the credentials it uses.
package connection

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Connection identifies one external marketplace account.
type Connection struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Marketplace string    `json:"marketplace"`
	BaseURL     string    `json:"base_url"`
	ClientID    string    `json:"client_id"`
	APIKey      string    `json:"-"` // Never serialized outward
	IsEnabled   bool      `json:"is_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository provides read access to connection reference data. Connections
// are administered through the external CRUD surface; imports only read them.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	List(ctx context.Context) ([]*Connection, error)
}

// ErrConnectionNotFound indicates a missing connection
type ErrConnectionNotFound struct {
	ConnectionID uuid.UUID
}

func (e ErrConnectionNotFound) Error() string {
	return "connection not found: " + e.ConnectionID.String()
}

// Is implements the errors.Is interface for ErrConnectionNotFound
func (e ErrConnectionNotFound) Is(target error) bool {
	t, ok := target.(ErrConnectionNotFound)
	if !ok {
		return false
	}
	return t.ConnectionID == uuid.Nil || t.ConnectionID == e.ConnectionID
}
