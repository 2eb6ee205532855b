package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"condo-manager/backend/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RosterProvider returns the owners of a building with their weights.
type RosterProvider interface {
	// Members lists a building's owners in fraction order.
	Members(ctx context.Context, buildingID string) ([]models.Member, error)
}

// MinutesRepository stores assembly minutes.
type MinutesRepository interface {
	// GetMinute retrieves a minute by its ID.
	GetMinute(ctx context.Context, id string) (*models.Minute, error)
	// LatestMinute returns the most recent minute of a building other than
	// exceptID, used to prefill a new assembly.
	LatestMinute(ctx context.Context, buildingID, exceptID string) (*models.Minute, error)
	// CreateMinute inserts a new minute.
	CreateMinute(ctx context.Context, minute *models.Minute) error
	// UpdateMinuteAgendaItems replaces a minute's agenda, results included.
	UpdateMinuteAgendaItems(ctx context.Context, minuteID string, items []models.AgendaItem) error
}

// BuildingRepository stores buildings and their rosters.
type BuildingRepository interface {
	GetBuilding(ctx context.Context, id string) (*models.Building, error)
	ListBuildings(ctx context.Context, organizationID string) ([]*models.Building, error)
	CreateBuilding(ctx context.Context, building *models.Building) error
	AddMember(ctx context.Context, buildingID string, member models.Member) error
}

// Repository is the full relational store used by the service.
type Repository interface {
	Ping(ctx context.Context) error
	GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error

	BuildingRepository
	RosterProvider
	MinutesRepository
}

// newID returns id, or a fresh UUID when id is empty.
func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// stamp returns t, or now when t is zero.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
