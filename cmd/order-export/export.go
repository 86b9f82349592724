package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/orderjson"
)

const (
	blockSize     = 1 << 20
	progressEvery = 10_000
)

// streamFunc feeds orders to fn one at a time.
type streamFunc func(ctx context.Context, fn func(*order.Order) error) error

type exportStats struct {
	Orders  int
	Lines   int
	Revenue decimal.Decimal
}

// export writes every streamed order as one JSON line into a parallel gzip
// stream on w.
func export(ctx context.Context, w io.Writer, blocks int, stream streamFunc) (exportStats, error) {
	var stats exportStats

	zw, err := pgzip.NewWriterLevel(w, pgzip.BestSpeed)
	if err != nil {
		return stats, errors.Wrap(err, "create gzip writer")
	}
	if blocks < 1 {
		blocks = 1
	}
	if err := zw.SetConcurrency(blockSize, blocks); err != nil {
		return stats, errors.Wrap(err, "set gzip concurrency")
	}

	var e jx.Encoder
	err = stream(ctx, func(o *order.Order) error {
		e.Reset()
		orderjson.Encode(&e, o)
		if _, err := zw.Write(append(e.Bytes(), '\n')); err != nil {
			return errors.Wrapf(err, "write order %d", o.ID)
		}
		stats.Orders++
		stats.Lines += len(o.Lines)
		stats.Revenue = stats.Revenue.Add(o.Total)
		if stats.Orders%progressEvery == 0 {
			slog.Info("progress", slog.Int("orders", stats.Orders))
		}
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return stats, errors.Wrap(err, "stream orders")
	}
	if err := zw.Close(); err != nil {
		return stats, errors.Wrap(err, "flush gzip")
	}
	return stats, nil
}
