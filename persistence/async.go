package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
)

var ErrMirrorClosed = errors.New("mirror closed")

type mirrorJob struct {
	name string
	run  func(ctx context.Context) error
}

// AsyncMirror queues writes for a single background worker. Callers never wait
// on storage: when the queue is full the write is dropped and OnDrop is called.
type AsyncMirror struct {
	next    Mirror
	queue   chan mirrorJob
	timeout time.Duration
	OnDrop  func(name string)

	closeOnce sync.Once
	mutex     sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewAsyncMirror(next Mirror, queueSize int, timeout time.Duration) *AsyncMirror {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &AsyncMirror{
		next:    next,
		queue:   make(chan mirrorJob, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.worker()
	return a
}

func (a *AsyncMirror) worker() {
	defer close(a.done)
	for job := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := job.run(ctx); err != nil {
			logger.Log.Warnf("mirror %s failed: %v", job.name, err)
		}
		cancel()
	}
}

func (a *AsyncMirror) enqueue(name string, run func(ctx context.Context) error) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.closed {
		return ErrMirrorClosed
	}
	select {
	case a.queue <- mirrorJob{name: name, run: run}:
	default:
		if a.OnDrop != nil {
			a.OnDrop(name)
		}
		logger.Log.Debugf("mirror queue full, dropped %s", name)
	}
	return nil
}

// The context is ignored; the job runs later under its own timeout.
func (a *AsyncMirror) SaveRoomState(_ context.Context, rec models.RoomRecord) error {
	return a.enqueue("room "+rec.RoomID, func(ctx context.Context) error {
		return a.next.SaveRoomState(ctx, rec)
	})
}

func (a *AsyncMirror) SavePlayer(_ context.Context, rec models.PlayerRecord) error {
	return a.enqueue("player "+rec.SocketID, func(ctx context.Context) error {
		return a.next.SavePlayer(ctx, rec)
	})
}

func (a *AsyncMirror) DeletePlayer(_ context.Context, socketID string) error {
	return a.enqueue("delete player "+socketID, func(ctx context.Context) error {
		return a.next.DeletePlayer(ctx, socketID)
	})
}

func (a *AsyncMirror) SaveMatchResult(_ context.Context, res *models.MatchResult) error {
	cp := *res
	return a.enqueue("match "+res.RoomID, func(ctx context.Context) error {
		return a.next.SaveMatchResult(ctx, &cp)
	})
}

// Close stops accepting writes and waits for queued ones to finish or ctx to expire.
func (a *AsyncMirror) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mutex.Lock()
		a.closed = true
		close(a.queue)
		a.mutex.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiMirror writes to every mirror and joins the errors.
type MultiMirror []Mirror

func (m MultiMirror) SaveRoomState(ctx context.Context, rec models.RoomRecord) error {
	var errs []error
	for _, mm := range m {
		errs = append(errs, mm.SaveRoomState(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m MultiMirror) SavePlayer(ctx context.Context, rec models.PlayerRecord) error {
	var errs []error
	for _, mm := range m {
		errs = append(errs, mm.SavePlayer(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m MultiMirror) DeletePlayer(ctx context.Context, socketID string) error {
	var errs []error
	for _, mm := range m {
		errs = append(errs, mm.DeletePlayer(ctx, socketID))
	}
	return errors.Join(errs...)
}

func (m MultiMirror) SaveMatchResult(ctx context.Context, res *models.MatchResult) error {
	var errs []error
	for _, mm := range m {
		errs = append(errs, mm.SaveMatchResult(ctx, res))
	}
	return errors.Join(errs...)
}
