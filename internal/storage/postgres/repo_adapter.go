package postgres

import (
	"context"

	"catalogindex/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			AutoCreateTable: cfg.DB.AutoCreateTable,
		})
		if err != nil {
			return nil, err
		}
		return &storage.RowSink{
			Kind:    "postgres",
			RunID:   cfg.RunID,
			Copy:    r.CopyFrom,
			PingFn:  r.Ping,
			CloseFn: closeFn,
		}, nil
	})
}
