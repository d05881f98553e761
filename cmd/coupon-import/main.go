// Command coupon-import loads gzipped coupon batch files into the database.
// Codes repeated within or across files are imported once, first file wins.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const writeChunk = 1000

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing coupon batch files")
	flag.StringVar(&pattern, "pattern", "coupons*.csv.gz", "glob matched against files in data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, pattern, databaseURL, dryRun); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, dataDir, pattern, databaseURL string, dryRun bool) error {
	paths, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list batch files")
	}
	if len(paths) == 0 {
		return errors.Errorf("no files match %s in %s", pattern, dataDir)
	}
	sort.Strings(paths)

	lg.Info("Reading batches", zap.Strings("files", paths))
	batches, err := readBatches(ctx, lg, paths)
	if err != nil {
		return err
	}
	rejected := 0
	for _, b := range batches {
		rejected += b.rejected
		lg.Info("Batch parsed",
			zap.String("file", b.path),
			zap.Int("coupons", len(b.coupons)),
			zap.Int("rejected", b.rejected),
		)
	}

	coupons, dropped := dedupe(batches)
	lg.Info("Deduplicated",
		zap.Int("unique", len(coupons)),
		zap.Int("duplicates", len(dropped)),
		zap.Int("rejected", rejected),
	)
	if len(dropped) > 0 {
		lg.Debug("Duplicate codes", zap.Strings("codes", dropped))
	}
	if dryRun || len(coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, lg, postgres.NewSeeder(postgres.New(pool)), coupons)
}

type couponWriter interface {
	UpsertCoupons(ctx context.Context, coupons []coupon.Coupon) error
}

func writeCoupons(ctx context.Context, lg *zap.Logger, w couponWriter, coupons []coupon.Coupon) error {
	for start := 0; start < len(coupons); start += writeChunk {
		end := min(start+writeChunk, len(coupons))
		if err := w.UpsertCoupons(ctx, coupons[start:end]); err != nil {
			return errors.Wrapf(err, "write coupons %d-%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(coupons)))
	}
	return nil
}
