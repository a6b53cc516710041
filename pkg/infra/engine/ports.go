package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

const claimRounds = 10

// Lease holds exclusively claimed engine ports. Cooperating service
// processes on one host coordinate through the lock files, so an engine
// instance is never shared.
type Lease struct {
	ports []int
	locks []*flock.Flock
}

// Ports returns the claimed ports in claim order.
func (l *Lease) Ports() []int {
	return l.ports
}

// Release unlocks every claimed port. Safe to call once at shutdown.
func (l *Lease) Release(ctx context.Context) {
	logger := ctxlog.From(ctx)
	for i, lk := range l.locks {
		if err := lk.Unlock(); err != nil {
			logger.Warn("Failed to release port lock",
				"port", l.ports[i],
				"lock_file", lk.Path(),
				"error", err,
			)
			continue
		}
		logger.Debug("Released port lock", "port", l.ports[i])
	}
	l.locks = nil
	l.ports = nil
}

// Allocator claims engine ports from a fixed range via per-port lock files
// named .lock_<port> under lockDir.
type Allocator struct {
	lockDir  string
	basePort int
	poolSize int
	jitter   func() time.Duration
}

// NewAllocator creates an allocator over [basePort, basePort+poolSize).
func NewAllocator(lockDir string, basePort, poolSize int) *Allocator {
	return &Allocator{
		lockDir:  lockDir,
		basePort: basePort,
		poolSize: poolSize,
		jitter: func() time.Duration {
			return 100*time.Millisecond + rand.N(400*time.Millisecond)
		},
	}
}

// Claim acquires n distinct ports, scanning the whole range up to ten rounds
// with jitter between attempts. On failure any partially claimed ports are
// released.
func (a *Allocator) Claim(ctx context.Context, n int) (*Lease, error) {
	if n > a.poolSize {
		return nil, goerr.New(fmt.Sprintf("requested %d ports from a pool of %d", n, a.poolSize))
	}

	lease := &Lease{}
	held := make(map[int]bool, n)

	for len(lease.ports) < n {
		port, lk, err := a.nextPort(ctx, held)
		if err != nil {
			lease.Release(ctx)
			return nil, err
		}
		held[port] = true
		lease.ports = append(lease.ports, port)
		lease.locks = append(lease.locks, lk)
	}

	return lease, nil
}

// nextPort scans the port range for a free lock, retrying up to claimRounds
// full passes.
func (a *Allocator) nextPort(ctx context.Context, held map[int]bool) (int, *flock.Flock, error) {
	logger := ctxlog.From(ctx)

	for round := 0; round < claimRounds; round++ {
		for port := a.basePort; port < a.basePort+a.poolSize; port++ {
			if held[port] {
				continue
			}

			select {
			case <-time.After(a.jitter()):
			case <-ctx.Done():
				return 0, nil, goerr.Wrap(ctx.Err(), "port claim cancelled")
			}

			lk := flock.New(filepath.Join(a.lockDir, fmt.Sprintf(".lock_%d", port)))
			locked, err := lk.TryLock()
			if err != nil {
				logger.Debug("Port lock attempt failed", "port", port, "error", err)
				continue
			}
			if locked {
				logger.Info("Claimed engine port", "port", port, "lock_file", lk.Path())
				return port, lk, nil
			}
		}
	}

	return 0, nil, goerr.New(fmt.Sprintf("no available engine port in [%d, %d) after %d rounds",
		a.basePort, a.basePort+a.poolSize, claimRounds))
}
