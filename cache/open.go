package cache

import (
	"context"
	"fmt"
)

type Backend string

const (
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendGCS      Backend = "gcs"
)

type Options struct {
	Backend     Backend
	Dir         string
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
	RedisPrefix string
	GCSBucket   string
	GCSPrefix   string
}

// Open builds the Store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(opts.PostgresDSN)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.RedisPrefix)
	case BackendGCS:
		if opts.GCSBucket == "" {
			return nil, fmt.Errorf("gcs backend requires a bucket")
		}
		return NewGCSStore(ctx, opts.GCSBucket, opts.GCSPrefix)
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
