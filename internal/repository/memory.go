package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"condo-manager/backend/pkg/models"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	organizations map[string]*models.Organization
	buildings     map[string]*models.Building
	members       map[string][]models.Member
	minutes       map[string]*models.Minute
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		organizations: make(map[string]*models.Organization),
		buildings:     make(map[string]*models.Building),
		members:       make(map[string][]models.Member),
		minutes:       make(map[string]*models.Minute),
	}
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) GetOrganizationByDomain(_ context.Context, domain string) (*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, org := range r.organizations {
		if org.Domain == domain {
			out := *org
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) CreateOrganization(_ context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	org.ID = newID(org.ID)
	org.CreatedAt = stamp(org.CreatedAt)
	org.UpdatedAt = stamp(org.UpdatedAt)
	out := *org
	r.organizations[org.ID] = &out
	return nil
}

func (r *MemoryRepository) GetBuilding(_ context.Context, id string) (*models.Building, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buildings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *b
	return &out, nil
}

func (r *MemoryRepository) ListBuildings(_ context.Context, organizationID string) ([]*models.Building, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Building
	for _, b := range r.buildings {
		if b.OrganizationID == organizationID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) CreateBuilding(_ context.Context, b *models.Building) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = newID(b.ID)
	b.CreatedAt = stamp(b.CreatedAt)
	out := *b
	r.buildings[b.ID] = &out
	return nil
}

func (r *MemoryRepository) AddMember(_ context.Context, buildingID string, m models.Member) error {
	if m.Weight < 0 {
		return fmt.Errorf("member %s: %w", m.ID, models.ErrNegativeWeight)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	roster := r.members[buildingID]
	for i := range roster {
		if roster[i].ID == m.ID {
			roster[i] = m
			return nil
		}
	}
	r.members[buildingID] = append(roster, m)
	return nil
}

// Members returns the roster ordered by fraction, then id.
func (r *MemoryRepository) Members(_ context.Context, buildingID string) ([]models.Member, error) {
	r.mu.RLock()
	out := append([]models.Member(nil), r.members[buildingID]...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Fraction != out[j].Fraction {
			return out[i].Fraction < out[j].Fraction
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) GetMinute(_ context.Context, id string) (*models.Minute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.minutes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMinute(m), nil
}

func (r *MemoryRepository) LatestMinute(_ context.Context, buildingID, exceptID string) (*models.Minute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *models.Minute
	for _, m := range r.minutes {
		if m.BuildingID != buildingID || m.ID == exceptID {
			continue
		}
		if latest == nil || m.Number > latest.Number {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyMinute(latest), nil
}

func (r *MemoryRepository) CreateMinute(_ context.Context, m *models.Minute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	m.UpdatedAt = stamp(m.UpdatedAt)
	r.minutes[m.ID] = copyMinute(m)
	return nil
}

func (r *MemoryRepository) UpdateMinuteAgendaItems(_ context.Context, minuteID string, items []models.AgendaItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.minutes[minuteID]
	if !ok {
		return ErrNotFound
	}
	m.AgendaItems = append([]models.AgendaItem(nil), items...)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func copyMinute(m *models.Minute) *models.Minute {
	out := *m
	out.AgendaItems = append([]models.AgendaItem(nil), m.AgendaItems...)
	return &out
}
