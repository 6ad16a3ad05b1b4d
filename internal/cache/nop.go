package cache

import (
	"context"
	"time"
)

// NopCache is used when no Redis is configured. Writes are dropped.
type NopCache struct{}

func (NopCache) Ping(context.Context) error { return nil }
func (NopCache) Close() error               { return nil }

func (NopCache) SetJobStatus(context.Context, string, string, time.Duration) error { return nil }

func (NopCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

var _ Cache = NopCache{}
