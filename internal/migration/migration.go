package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	invoicedomain "github.com/paissive/monetize/internal/invoice/domain"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// RunMigrations applies the versioned SQL migrations. Postgres only;
// other backends go through AutoMigrate instead.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate builds the schema straight from the models. Used for
// sqlite, where the versioned postgres migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&usagedomain.UsageRecord{},
		&usagedomain.UsageLimit{},
		&usagedomain.UsageQuota{},
		&pricingdomain.PricingRule{},
		&pricingdomain.PriceTier{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Transaction{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoicePayment{},
	)
}
