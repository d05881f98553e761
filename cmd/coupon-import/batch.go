package main

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	falsePositiveRate = 0.001
	fieldCount        = 6
)

// batch is the content of one coupon file. Each line is
//
//	CODE,offer,minimumPrice,maxDiscount,expiresAt,description
//
// with expiresAt in RFC 3339 or YYYY-MM-DD form. Blank lines and lines
// starting with # are skipped.
type batch struct {
	path    string
	coupons []coupon.Coupon
	// rejected counts lines that failed to parse or validate.
	rejected int
}

// readBatches parses every file concurrently. Results keep the order of
// paths.
func readBatches(ctx context.Context, lg *zap.Logger, paths []string) ([]*batch, error) {
	batches := make([]*batch, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			b, err := readBatch(ctx, lg, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

func readBatch(ctx context.Context, lg *zap.Logger, path string) (*batch, error) {
	b := &batch{path: path}
	err := streamGzFile(ctx, path, func(lineNo int, line string) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			return
		}
		c, err := parseLine(line)
		if err != nil {
			b.rejected++
			lg.Warn("Rejected coupon line",
				zap.String("file", path),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			return
		}
		b.coupons = append(b.coupons, c)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func parseLine(line string) (coupon.Coupon, error) {
	fields := strings.SplitN(line, ",", fieldCount)
	if len(fields) < fieldCount-1 {
		return coupon.Coupon{}, errors.Errorf("expected at least %d fields, got %d", fieldCount-1, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	c := coupon.Coupon{Code: coupon.NormalizeCode(fields[0]), Listed: true}
	var err error
	if c.Offer, err = decimal.NewFromString(fields[1]); err != nil {
		return c, errors.Wrap(err, "offer")
	}
	if c.MinimumPrice, err = decimal.NewFromString(fields[2]); err != nil {
		return c, errors.Wrap(err, "minimum price")
	}
	if fields[3] != "" {
		if c.MaxDiscount, err = decimal.NewFromString(fields[3]); err != nil {
			return c, errors.Wrap(err, "max discount")
		}
	}
	if c.ExpiresAt, err = parseExpiry(fields[4]); err != nil {
		return c, errors.Wrap(err, "expires at")
	}
	if len(fields) == fieldCount {
		c.Description = fields[5]
	}
	if err := coupon.Validate(&c); err != nil {
		return c, err
	}
	return c, nil
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	// A bare date stays valid through the end of that day.
	return t.Add(24*time.Hour - time.Second), nil
}

// dedupe keeps the first occurrence of every code in file order and
// returns the codes it dropped. A bloom filter marks suspects in one pass and
// only suspect codes are tracked exactly in the second.
func dedupe(batches []*batch) (kept []coupon.Coupon, dropped []string) {
	total := 0
	for _, b := range batches {
		total += len(b.coupons)
	}
	if total == 0 {
		return nil, nil
	}

	seen := bloom.NewWithEstimates(uint(total), falsePositiveRate)
	suspects := make(map[string]bool)
	for _, b := range batches {
		for i := range b.coupons {
			if code := b.coupons[i].Code; seen.TestAndAddString(code) {
				suspects[code] = false
			}
		}
	}

	kept = make([]coupon.Coupon, 0, total)
	for _, b := range batches {
		for _, c := range b.coupons {
			emitted, suspect := suspects[c.Code]
			if suspect {
				if emitted {
					dropped = append(dropped, c.Code)
					continue
				}
				suspects[c.Code] = true
			}
			kept = append(kept, c)
		}
	}
	return kept, dropped
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		fn(lineNo, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
