// Command seed-db applies migrations and loads a catalog file: categories,
// products, demo addresses, coupons, and the admin API key.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		catalogFile string
		apiKey      string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_AUTH_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if pepper == "" {
		pepper = os.Getenv("SHOP_AUTH_API_KEY_PEPPER")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile, apiKey, pepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile, apiKey, pepper string) error {
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	c, err := decodeCatalog(data)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.New(pool)
	s := postgres.NewSeeder(db)
	err = db.InTx(ctx, func(ctx context.Context) error {
		for i := range c.Categories {
			if err := s.UpsertCategory(ctx, &c.Categories[i]); err != nil {
				return err
			}
		}
		for i := range c.Products {
			if err := s.UpsertProduct(ctx, &c.Products[i]); err != nil {
				return err
			}
		}
		for i := range c.Addresses {
			if err := s.UpsertAddress(ctx, &c.Addresses[i]); err != nil {
				return err
			}
		}
		if err := s.UpsertCoupons(ctx, c.Coupons); err != nil {
			return err
		}
		if apiKey == "" {
			lg.Warn("No admin API key given, skipping")
			return nil
		}
		return s.UpsertAPIKey(ctx, &auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: auth.HashKey([]byte(pepper), apiKey),
			Name:    "Seeded admin key",
			Scopes:  []string{auth.ScopeAdmin},
		})
	})
	if err != nil {
		return errors.Wrap(err, "seed")
	}

	lg.Info("Catalog loaded",
		zap.Int("categories", len(c.Categories)),
		zap.Int("products", len(c.Products)),
		zap.Int("addresses", len(c.Addresses)),
		zap.Int("coupons", len(c.Coupons)),
	)
	return nil
}
