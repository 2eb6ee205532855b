package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"condo-manager/backend/internal/workflow"
	"condo-manager/backend/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository is a PostgreSQL implementation of the Repository interface.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the tables the repository and the state store need.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// GetOrganizationByDomain retrieves the organization owning an email domain.
func (r *PostgresRepository) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.QueryRow(ctx,
		"SELECT id, name, domain, created_at, updated_at FROM organizations WHERE domain = $1", domain).
		Scan(&org.ID, &org.Name, &org.Domain, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

// CreateOrganization inserts a new organization.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	org.ID = newID(org.ID)
	org.CreatedAt = stamp(org.CreatedAt)
	org.UpdatedAt = stamp(org.UpdatedAt)
	_, err := r.db.Exec(ctx,
		"INSERT INTO organizations (id, name, domain, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		org.ID, org.Name, org.Domain, org.CreatedAt, org.UpdatedAt)
	return err
}

// GetBuilding retrieves a building by its ID.
func (r *PostgresRepository) GetBuilding(ctx context.Context, id string) (*models.Building, error) {
	var b models.Building
	err := r.db.QueryRow(ctx,
		"SELECT id, organization_id, name, address, created_at FROM buildings WHERE id = $1", id).
		Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Address, &b.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// ListBuildings lists an organization's buildings by name.
func (r *PostgresRepository) ListBuildings(ctx context.Context, organizationID string) ([]*models.Building, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, organization_id, name, address, created_at FROM buildings WHERE organization_id = $1 ORDER BY name",
		organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buildings []*models.Building
	for rows.Next() {
		var b models.Building
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Address, &b.CreatedAt); err != nil {
			return nil, err
		}
		buildings = append(buildings, &b)
	}
	return buildings, rows.Err()
}

// CreateBuilding inserts a new building.
func (r *PostgresRepository) CreateBuilding(ctx context.Context, b *models.Building) error {
	b.ID = newID(b.ID)
	b.CreatedAt = stamp(b.CreatedAt)
	_, err := r.db.Exec(ctx,
		"INSERT INTO buildings (id, organization_id, name, address, created_at) VALUES ($1, $2, $3, $4, $5)",
		b.ID, b.OrganizationID, b.Name, b.Address, b.CreatedAt)
	return err
}

// AddMember adds or replaces an owner in a building roster.
func (r *PostgresRepository) AddMember(ctx context.Context, buildingID string, m models.Member) error {
	if m.Weight < 0 {
		return fmt.Errorf("member %s: %w", m.ID, models.ErrNegativeWeight)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO members (id, building_id, name, fraction, weight) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (building_id, id) DO UPDATE SET name = EXCLUDED.name, fraction = EXCLUDED.fraction, weight = EXCLUDED.weight`,
		m.ID, buildingID, m.Name, m.Fraction, int64(m.Weight))
	return err
}

// Members lists a building's owners in fraction order.
func (r *PostgresRepository) Members(ctx context.Context, buildingID string) ([]models.Member, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, name, fraction, weight FROM members WHERE building_id = $1 ORDER BY fraction, id", buildingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		var weight int64
		if err := rows.Scan(&m.ID, &m.Name, &m.Fraction, &weight); err != nil {
			return nil, err
		}
		m.Weight = models.Permille(weight)
		members = append(members, m)
	}
	return members, rows.Err()
}

const minuteColumns = "id, building_id, number, held_at, location, assembly_call, agenda_items, created_at, updated_at"

func scanMinute(row pgx.Row) (*models.Minute, error) {
	var m models.Minute
	var call string
	var agenda []byte
	if err := row.Scan(&m.ID, &m.BuildingID, &m.Number, &m.HeldAt, &m.Location, &call, &agenda, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	m.Call = models.AssemblyCall(call)
	if err := json.Unmarshal(agenda, &m.AgendaItems); err != nil {
		return nil, fmt.Errorf("decode agenda of minute %s: %w", m.ID, err)
	}
	return &m, nil
}

// GetMinute retrieves a minute by its ID.
func (r *PostgresRepository) GetMinute(ctx context.Context, id string) (*models.Minute, error) {
	return scanMinute(r.db.QueryRow(ctx, "SELECT "+minuteColumns+" FROM minutes WHERE id = $1", id))
}

// LatestMinute returns the highest-numbered minute of a building other than exceptID.
func (r *PostgresRepository) LatestMinute(ctx context.Context, buildingID, exceptID string) (*models.Minute, error) {
	return scanMinute(r.db.QueryRow(ctx,
		"SELECT "+minuteColumns+" FROM minutes WHERE building_id = $1 AND id::text <> $2 ORDER BY number DESC LIMIT 1",
		buildingID, exceptID))
}

// CreateMinute inserts a new minute.
func (r *PostgresRepository) CreateMinute(ctx context.Context, m *models.Minute) error {
	m.ID = newID(m.ID)
	m.CreatedAt = stamp(m.CreatedAt)
	m.UpdatedAt = stamp(m.UpdatedAt)
	agenda, err := json.Marshal(nonNilAgenda(m.AgendaItems))
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		"INSERT INTO minutes ("+minuteColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		m.ID, m.BuildingID, m.Number, m.HeldAt, m.Location, string(m.Call), agenda, m.CreatedAt, m.UpdatedAt)
	return err
}

// UpdateMinuteAgendaItems replaces a minute's agenda.
func (r *PostgresRepository) UpdateMinuteAgendaItems(ctx context.Context, minuteID string, items []models.AgendaItem) error {
	agenda, err := json.Marshal(nonNilAgenda(items))
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		"UPDATE minutes SET agenda_items = $1, updated_at = $2 WHERE id = $3", agenda, time.Now().UTC(), minuteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresStateStore keeps workflow state blobs in the workflow_states table.
type PostgresStateStore struct {
	db *pgxpool.Pool
}

// NewPostgresStateStore creates a state store over db.
func NewPostgresStateStore(db *pgxpool.Pool) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

func (s *PostgresStateStore) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_states (key, blob, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		key, blob)
	return err
}

func (s *PostgresStateStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, "SELECT blob FROM workflow_states WHERE key = $1", key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	return blob, err
}

func (s *PostgresStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM workflow_states WHERE key = $1", key)
	return err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nonNilAgenda(items []models.AgendaItem) []models.AgendaItem {
	if items == nil {
		return []models.AgendaItem{}
	}
	return items
}
