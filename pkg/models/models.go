// Package models defines the domain models for the condominium service
package models

import (
	"time"
)

// Organization is a management company; every building belongs to one.
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Domain    string    `json:"domain" db:"domain"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Building is a condominium whose owners hold fractions of its value
type Building struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Address        string    `json:"address" db:"address"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Minute is the record of one owners' assembly.
type Minute struct {
	ID          string       `json:"id" db:"id"`
	BuildingID  string       `json:"building_id" db:"building_id"`
	Number      int          `json:"number" db:"number"`
	HeldAt      *time.Time   `json:"held_at,omitempty" db:"held_at"`
	Location    string       `json:"location,omitempty" db:"location"`
	Call        AssemblyCall `json:"call,omitempty" db:"call"`
	AgendaItems []AgendaItem `json:"agenda_items" db:"agenda_items"` // JSONB
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}
