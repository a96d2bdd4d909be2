package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when the database does not answer a ping.
func PingCheck(db Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// PoolStat is the subset of *pgxpool.Stat read by PoolSaturationCheck.
type PoolStat interface {
	MaxConns() int32
	AcquiredConns() int32
	EmptyAcquireCount() int64
}

// PoolSaturationCheck fails while every connection of the pool is acquired
// and acquires had to wait for one since the previous run.
func PoolSaturationCheck(stat func() PoolStat) CheckFunc {
	var lastEmpty int64
	return func(_ context.Context) error {
		s := stat()
		waited := s.EmptyAcquireCount() > lastEmpty
		lastEmpty = s.EmptyAcquireCount()
		if s.MaxConns() > 0 && s.AcquiredConns() >= s.MaxConns() && waited {
			return errors.Errorf("pool saturated: %d/%d connections acquired", s.AcquiredConns(), s.MaxConns())
		}
		return nil
	}
}

// GoroutineCountCheck fails above threshold goroutines, which usually means
// upstream calls are piling up.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
