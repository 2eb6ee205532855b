package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"condo-manager/backend/internal/config"
	"condo-manager/backend/internal/logging"
	"condo-manager/backend/internal/repository"
	"condo-manager/backend/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const seedBuilding = "Edifício Aurora"

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configFile := flag.String("config", "", "Path to config.yaml")
	domain := flag.String("domain", "localhost", "Email domain of the seeded organization")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	repo := repository.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	// 1. Ensure the organization exists
	org, err := repo.GetOrganizationByDomain(ctx, *domain)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		logger.Info("Creating default organization", "domain", *domain)
		org = &models.Organization{Name: "Local Dev Administração", Domain: *domain}
		if err := repo.CreateOrganization(ctx, org); err != nil {
			log.Fatalf("Failed to create organization: %v", err)
		}
	case err != nil:
		log.Fatalf("Failed to look up organization: %v", err)
	default:
		logger.Info("Found existing organization", "id", org.ID)
	}

	// 2. Skip when the demo building is already there
	buildings, err := repo.ListBuildings(ctx, org.ID)
	if err != nil {
		log.Fatalf("Failed to list buildings: %v", err)
	}
	for _, b := range buildings {
		if b.Name == seedBuilding {
			logger.Info("Skipping existing building", "id", b.ID)
			return
		}
	}

	// 3. Building with a roster summing to 1000‰
	building := &models.Building{OrganizationID: org.ID, Name: seedBuilding, Address: "Rua das Flores 12, Porto"}
	if err := repo.CreateBuilding(ctx, building); err != nil {
		log.Fatalf("Failed to create building: %v", err)
	}
	roster := []struct {
		fraction string
		name     string
		weight   string
	}{
		{"A", "Ana Ferreira", "120"},
		{"B", "Bruno Costa", "110"},
		{"C", "Carla Sousa", "105"},
		{"D", "Diogo Martins", "100"},
		{"E", "Eva Lopes", "100"},
		{"F", "Filipe Rocha", "95"},
		{"G", "Graça Pinto", "95"},
		{"H", "Hugo Neves", "90"},
		{"I", "Inês Carvalho", "95"},
		{"J", "João Ribeiro", "90"},
	}
	for _, r := range roster {
		weight, err := models.ParsePermille(r.weight)
		if err != nil {
			log.Fatalf("Invalid weight for fraction %s: %v", r.fraction, err)
		}
		m := models.Member{ID: "fr-" + r.fraction, Name: r.name, Fraction: r.fraction, Weight: weight}
		if err := repo.AddMember(ctx, building.ID, m); err != nil {
			log.Fatalf("Failed to add member %s: %v", r.name, err)
		}
	}
	logger.Info("Seeded building", "id", building.ID, "members", len(roster))

	// 4. An open minute ready for an assembly
	heldAt := time.Now().AddDate(0, 0, 14).UTC().Truncate(24 * time.Hour)
	minute := &models.Minute{
		BuildingID: building.ID,
		Number:     1,
		HeldAt:     &heldAt,
		Location:   "Sala do condomínio, piso 0",
		Call:       models.FirstCall,
		AgendaItems: []models.AgendaItem{
			{Number: 1, Title: "Aprovação das contas de 2025", Kind: models.AgendaVotable, Majority: models.MajoritySimple},
			{Number: 2, Title: "Orçamento e fundo comum de reserva", Kind: models.AgendaVotable, Majority: models.MajoritySimple},
			{Number: 3, Title: "Obras de reabilitação da fachada", Kind: models.AgendaVotable, Majority: models.MajorityQualified},
			{Number: 4, Title: "Informações da administração", Kind: models.AgendaInformative},
		},
	}
	if err := repo.CreateMinute(ctx, minute); err != nil {
		log.Fatalf("Failed to create minute: %v", err)
	}
	logger.Info("Seeded minute", "id", minute.ID, "building", building.ID)
	logger.Info("Seeding complete!")
}
