package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const progressEvery = 1_000_000

// upserter writes coupons, replacing existing codes.
type upserter interface {
	Upsert(ctx context.Context, coupons ...coupon.Coupon) error
}

type options struct {
	capacity   uint
	fpr        float64
	batchSize  int
	defaultTTL time.Duration
	now        func() time.Time
}

type stats struct {
	rows       int64
	written    int64
	duplicates int64
}

// ingest loads files in three passes:
//
//  1. build one bloom filter of codes per file, concurrently;
//  2. stream each file again, writing every row whose code is in no earlier
//     file's filter and holding back the rest as candidates;
//  3. rescan the files for the candidate codes only, write the candidates
//     that are not really present in an earlier file.
func ingest(ctx context.Context, files []string, repo upserter, opts options) (stats, error) {
	if opts.batchSize <= 0 {
		opts.batchSize = 1000
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	defaultExpiry := opts.now().Add(opts.defaultTTL)

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(opts.capacity, opts.fpr)
			n, err := streamFile(gctx, path, defaultExpiry, func(c coupon.Coupon) error {
				f.AddString(c.Code)
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Int64("rows", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats{}, err
	}

	var st stats
	slog.Info("pass 2: writing unique codes")
	candidates := make([]map[string]coupon.Coupon, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			held := make(map[string]coupon.Coupon)
			w := &batchWriter{repo: repo, size: opts.batchSize, written: &st.written}
			n, err := streamFile(gctx, path, defaultExpiry, func(c coupon.Coupon) error {
				for j := range i {
					if filters[j].TestString(c.Code) {
						held[c.Code] = c
						return nil
					}
				}
				return w.add(gctx, c)
			})
			if err != nil {
				return errors.Wrapf(err, "ingest %s", path)
			}
			if err := w.flush(gctx); err != nil {
				return errors.Wrapf(err, "ingest %s", path)
			}
			atomic.AddInt64(&st.rows, n)
			candidates[i] = held
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	want := make(map[string]struct{})
	for _, held := range candidates {
		for code := range held {
			want[code] = struct{}{}
		}
	}
	if len(want) == 0 {
		return st, nil
	}

	slog.Info("pass 3: resolving possible duplicates", slog.Int("candidates", len(want)))
	present := make([]map[string]struct{}, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			_, err := streamFile(gctx, path, defaultExpiry, func(c coupon.Coupon) error {
				if _, ok := want[c.Code]; ok {
					found[c.Code] = struct{}{}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "rescan %s", path)
			}
			present[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	w := &batchWriter{repo: repo, size: opts.batchSize, written: &st.written}
	for i, held := range candidates {
		for code, c := range held {
			if inEarlierFile(present[:i], code) {
				st.duplicates++
				continue
			}
			if err := w.add(ctx, c); err != nil {
				return st, err
			}
		}
	}
	return st, w.flush(ctx)
}

func inEarlierFile(earlier []map[string]struct{}, code string) bool {
	for _, found := range earlier {
		if _, ok := found[code]; ok {
			return true
		}
	}
	return false
}

// batchWriter groups coupons into Upsert calls of at most size coupons.
type batchWriter struct {
	repo    upserter
	size    int
	buf     []coupon.Coupon
	written *int64
}

func (w *batchWriter) add(ctx context.Context, c coupon.Coupon) error {
	w.buf = append(w.buf, c)
	if len(w.buf) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.repo.Upsert(ctx, w.buf...); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	atomic.AddInt64(w.written, int64(len(w.buf)))
	w.buf = w.buf[:0]
	return nil
}

// streamFile decodes a gzip CSV file and calls fn for every coupon row. A
// first row starting with "code" is treated as a header.
func streamFile(ctx context.Context, path string, defaultExpiry time.Time, fn func(coupon.Coupon) error) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(bufio.NewReader(gz))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = true

	var n int64
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrapf(err, "read line %d", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "code") {
			continue
		}

		c, err := parseRow(record, defaultExpiry)
		if err != nil {
			return n, errors.Wrapf(err, "line %d", line)
		}
		if err := fn(c); err != nil {
			return n, err
		}
		n++
		if n%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Int64("rows", n))
		}
	}
}

// parseRow converts one CSV record into a validated coupon.
func parseRow(record []string, defaultExpiry time.Time) (coupon.Coupon, error) {
	if len(record) < 4 {
		return coupon.Coupon{}, errors.Errorf("expected at least 4 fields, got %d", len(record))
	}

	discount, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse discount")
	}
	forNewUser, err := strconv.ParseBool(strings.TrimSpace(record[2]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse forNewUser")
	}
	forMember, err := strconv.ParseBool(strings.TrimSpace(record[3]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "parse forMember")
	}

	c := coupon.Coupon{
		Code:       strings.TrimSpace(record[0]),
		Discount:   discount,
		ForNewUser: forNewUser,
		ForMember:  forMember,
		ExpiresAt:  defaultExpiry,
	}
	if len(record) > 4 && strings.TrimSpace(record[4]) != "" {
		if c.ExpiresAt, err = time.Parse(time.RFC3339, strings.TrimSpace(record[4])); err != nil {
			return coupon.Coupon{}, errors.Wrap(err, "parse expiresAt")
		}
	}
	if len(record) > 5 {
		c.Description = strings.TrimSpace(record[5])
	}
	if err := c.Validate(); err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "coupon %q", c.Code)
	}
	return c, nil
}
