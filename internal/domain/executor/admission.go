package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/ptyexec/internal/infrastructure/monitoring"
)

// ErrAdmissionClosed is returned to commands waiting when the executor shuts down
var ErrAdmissionClosed = errors.New("executor: admission closed")

// Admission is a fixed pool of tickets bounding concurrently running commands
type Admission struct {
	sem     *semaphore.Weighted
	max     int
	inUse   atomic.Int64
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAdmission creates a pool of max tickets
func NewAdmission(max int) *Admission {
	ctx, cancel := context.WithCancel(context.Background())
	return &Admission{
		sem:    semaphore.NewWeighted(int64(max)),
		max:    max,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Admit blocks until a ticket is free, ctx ends or the pool closes. The
// returned release is idempotent.
func (a *Admission) Admit(ctx context.Context) (func(), error) {
	if a.ctx.Err() != nil {
		return nil, ErrAdmissionClosed
	}

	start := time.Now()
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	if err := a.sem.Acquire(acquireCtx, 1); err != nil {
		if a.ctx.Err() != nil && ctx.Err() == nil {
			return nil, ErrAdmissionClosed
		}
		return nil, err
	}
	if a.ctx.Err() != nil {
		a.sem.Release(1)
		return nil, ErrAdmissionClosed
	}

	a.inUse.Add(1)
	a.metrics.TicketAcquired(time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			a.inUse.Add(-1)
			a.sem.Release(1)
			a.metrics.TicketReleased()
		})
	}, nil
}

// InUse returns the number of tickets currently held
func (a *Admission) InUse() int {
	return int(a.inUse.Load())
}

// Max returns the pool size
func (a *Admission) Max() int {
	return a.max
}

// Close rejects every current and future waiter. Held tickets stay valid
// until released.
func (a *Admission) Close() {
	a.cancel()
}
