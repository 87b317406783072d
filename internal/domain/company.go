package domain

import (
	"fmt"
	"time"
)

// Company is the tenant that owns documents and API keys
type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NewCompany creates a new Company instance
func NewCompany(id, name string, createdAt time.Time) *Company {
	return &Company{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// ValidateCompany validates a Company instance
func ValidateCompany(c *Company) error {
	if c == nil {
		return fmt.Errorf("company cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("company ID is required")
	}

	if c.Name == "" {
		return fmt.Errorf("company Name is required")
	}

	return nil
}
