package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/boddenberg/customer-identity-bfa/internal/app"
	"github.com/boddenberg/customer-identity-bfa/internal/config"
	"github.com/boddenberg/customer-identity-bfa/internal/infra/observability"

	"go.uber.org/zap"
)

const fixtures = `{
  "accounts": [
    {"id": 1, "namespace": "guide", "name": "Kim Minji", "phone": "010-1111-1111", "source": "signup", "status": "active",
     "createdAt": "2024-12-01T09:00:00Z", "updatedAt": "2024-12-01T09:00:00Z"}
  ]
}`

func memoryConfig(path string) *config.Config {
	cfg := config.Load()
	cfg.Store = "memory"
	cfg.FixturesPath = path
	return cfg
}

func TestNew_MemoryStoreFromFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	if err := os.WriteFile(path, []byte(fixtures), 0o600); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}

	a, err := app.New(context.Background(), memoryConfig(path), observability.NewMetrics(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	got, err := a.Customers.ResolveCustomer(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Identity.Name != "Kim Minji" {
		t.Errorf("unexpected customer: %+v", got.Identity)
	}
}

func TestNew_MissingFixtures(t *testing.T) {
	_, err := app.New(context.Background(), memoryConfig(filepath.Join(t.TempDir(), "missing.json")), observability.NewMetrics(), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing fixtures file")
	}
}

func TestNew_PostgresRequiresURL(t *testing.T) {
	cfg := config.Load()
	cfg.Store = "postgres"
	cfg.DatabaseURL = ""

	if _, err := app.New(context.Background(), cfg, observability.NewMetrics(), zap.NewNop()); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}
