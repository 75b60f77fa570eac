// Command coupon-ingest bulk loads coupons from gzip-compressed CSV files.
//
// Each line is code,discount,forNewUser,forMember[,expiresAt[,description]].
// A code present in several files is taken from the first file listed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		opts        options
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.capacity, "bloom-capacity", 10_000_000, "expected number of codes per file")
	flag.Float64Var(&opts.fpr, "bloom-fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "coupons per upsert batch")
	flag.DurationVar(&opts.defaultTTL, "default-ttl", 90*24*time.Hour, "expiry for rows without expiresAt")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
		if err != nil {
			slog.Error("list coupon files", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sort.Strings(matches)
		files = matches
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, opts options) error {
	if len(files) == 0 {
		return errors.New("no coupon files to ingest")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	opts.now = time.Now
	st, err := ingest(ctx, files, postgres.NewCouponRepository(pool), opts)
	if err != nil {
		return err
	}
	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Int64("rows", st.rows),
		slog.Int64("written", st.written),
		slog.Int64("duplicates", st.duplicates),
	)
	return nil
}
