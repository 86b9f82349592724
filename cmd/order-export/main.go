// Command order-export dumps orders from PostgreSQL into a gzip-compressed
// JSON Lines file, one order per line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outDir      string
		branchID    int64
		userID      int64
		blocks      int
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out", ".", "directory for the export file")
	flag.Int64Var(&branchID, "branch-id", 0, "export only this branch (0 for all)")
	flag.Int64Var(&userID, "user-id", 0, "export only this user (0 for all)")
	flag.IntVar(&blocks, "gzip-blocks", 4, "parallel gzip blocks")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	filter := order.ListFilter{BranchID: branchID, UserID: userID}
	if err := run(ctx, databaseURL, outDir, filter, blocks); err != nil {
		slog.Error("order export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, outDir string, filter order.ListFilter, blocks int) error {
	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	repo := postgres.NewOrderRepository(pool)

	name := filepath.Join(outDir, fmt.Sprintf("orders-%s.jsonl.gz", time.Now().UTC().Format("20060102T150405Z")))
	tmp := name + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer func() { _ = os.Remove(tmp) }()

	start := time.Now()
	stats, err := export(ctx, f, blocks, func(ctx context.Context, fn func(*order.Order) error) error {
		return repo.Stream(ctx, filter, fn)
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close output")
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, name); err != nil {
		return errors.Wrap(err, "rename output")
	}

	slog.Info("order export completed",
		slog.String("file", name),
		slog.Int("orders", stats.Orders),
		slog.Int("lines", stats.Lines),
		slog.String("revenue", stats.Revenue.String()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
