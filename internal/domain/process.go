package domain

import (
	"strings"
	"time"
)

// Process is one workflow definition. Its stages become the board columns.
type Process struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProcess constructs a validated process.
func NewProcess(id, name, description string, now time.Time) (Process, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Process{}, ErrInvalidID
	}
	if name == "" {
		return Process{}, ErrInvalidName
	}
	return Process{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Rename renames the process.
func (p *Process) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.UpdatedAt = now.UTC()
	return nil
}
