// Package scheduler drives every room's tick loop and hands the snapshots to the broadcaster.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wfunc/soccerserver/broadcast"
	"github.com/wfunc/soccerserver/logger"
	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/monitor"
	"github.com/wfunc/soccerserver/persistence"
	"github.com/wfunc/soccerserver/room"
	"github.com/wfunc/soccerserver/timer"
)

// MatchRecorder receives every finished match, e.g. to update player statistics.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, res *models.MatchResult) error
}

type Options struct {
	TickInterval   time.Duration
	BroadcastEvery int           // publish every n-th tick; ticks with events always publish
	IdleTimeout    time.Duration // empty rooms are removed after this long
	MirrorInterval time.Duration // periodic room/player mirror sweep, 0 disables it
	RecordTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		TickInterval:   time.Second / 60,
		BroadcastEvery: 1,
		IdleTimeout:    30 * time.Second,
		MirrorInterval: 5 * time.Second,
		RecordTimeout:  5 * time.Second,
	}
}

// Scheduler 为每个房间运行独立的 tick 循环
type Scheduler struct {
	registry  *room.Registry
	publisher broadcast.Publisher
	metrics   *monitor.Metrics
	mirror    persistence.Mirror
	recorder  MatchRecorder
	opts      Options

	timers *timer.TimerManager
	loops  map[*room.Room]chan struct{} // keyed by room, a removed id may be recreated at once
	mutex  sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(registry *room.Registry, publisher broadcast.Publisher, metrics *monitor.Metrics, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.BroadcastEvery <= 0 {
		opts.BroadcastEvery = def.BroadcastEvery
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = def.RecordTimeout
	}
	return &Scheduler{
		registry:  registry,
		publisher: publisher,
		metrics:   metrics,
		opts:      opts,
		loops:     make(map[*room.Room]chan struct{}),
	}
}

// SetMirror and SetRecorder must be called before Start. Both are optional.
func (s *Scheduler) SetMirror(m persistence.Mirror) { s.mirror = m }

func (s *Scheduler) SetRecorder(r MatchRecorder) { s.recorder = r }

// Start begins ticking every current and future room until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	if s.ctx != nil {
		s.mutex.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.timers = timer.NewTimerManager(100 * time.Millisecond)
	s.mutex.Unlock()

	s.registry.AddObserver(s)
	for _, r := range s.registry.Rooms() {
		s.RoomCreated(r)
	}

	s.timers.AddTimer("gauges", time.Second, time.Second, s.refreshGauges)
	if s.mirror != nil && s.opts.MirrorInterval > 0 {
		s.timers.AddTimer("mirror sweep", s.opts.MirrorInterval, s.opts.MirrorInterval, s.mirrorSweep)
	}
	logger.Log.Infof("scheduler started: tick %v, broadcast every %d", s.opts.TickInterval, s.opts.BroadcastEvery)
}

// Stop halts every loop and housekeeping timer and waits for them to return.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.cancel == nil {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	for r, stop := range s.loops {
		close(stop)
		delete(s.loops, r)
	}
	timers := s.timers
	s.mutex.Unlock()

	s.wg.Wait()
	timers.Stop()
	logger.Log.Info("scheduler stopped")
}

// Running reports whether Start was called and Stop was not.
func (s *Scheduler) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ctx != nil && s.ctx.Err() == nil
}

// RoomCreated implements room.Observer.
func (s *Scheduler) RoomCreated(r *room.Room) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	if _, ok := s.loops[r]; ok {
		return
	}
	stop := make(chan struct{})
	s.loops[r] = stop
	s.wg.Add(1)
	go s.loop(r, stop)
}

// RoomRemoved implements room.Observer. It may run on the room's own loop, so it never waits.
func (s *Scheduler) RoomRemoved(r *room.Room) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if stop, ok := s.loops[r]; ok {
		close(stop)
		delete(s.loops, r)
	}
}

// Loops returns the number of running room loops.
func (s *Scheduler) Loops() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.loops)
}

func (s *Scheduler) loop(r *room.Room, stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	dt := s.opts.TickInterval.Seconds()
	var ticks uint64
	var idleSince time.Time

	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if r.PlayerCount() == 0 {
				if idleSince.IsZero() {
					idleSince = now
					// one last tick settles the phase after the room empties
					s.tick(r, dt, ticks)
				}
				if now.Sub(idleSince) >= s.opts.IdleTimeout {
					if err := s.registry.Remove(r.ID); err == nil {
						return
					}
					idleSince = time.Time{}
				}
				continue
			}
			idleSince = time.Time{}
			ticks++
			s.tick(r, dt, ticks)
		}
	}
}

// tick advances one room by dt. A panic is confined to this room and this tick.
func (s *Scheduler) tick(r *room.Room, dt float64, n uint64) {
	defer func() {
		if p := recover(); p != nil {
			logger.Log.Errorf("room %s: tick panicked: %v\n%s", r.ID, p, debug.Stack())
		}
	}()

	start := time.Now()
	snap := r.Advance(dt)
	if s.metrics != nil {
		s.metrics.Ticks.Inc()
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}

	if len(snap.Events) > 0 {
		s.handleEvents(r, snap)
	}
	if len(snap.Events) > 0 || n%uint64(s.opts.BroadcastEvery) == 0 {
		s.publish(snap)
	}
}

func (s *Scheduler) handleEvents(r *room.Room, snap *models.GameStateSnapshot) {
	for _, ev := range snap.Events {
		switch ev.Type {
		case models.EventGoal:
			if s.metrics != nil {
				s.metrics.Goals.WithLabelValues(string(ev.Team)).Inc()
			}
			s.saveRoom(r)
		case models.EventMatchStart:
			s.saveRoom(r)
		case models.EventMatchEnd:
			if s.metrics != nil {
				s.metrics.MatchesPlayed.Inc()
			}
			s.saveRoom(r)
			if res := r.TakeResult(); res != nil {
				s.finishMatch(res)
			}
		}
	}
}

func (s *Scheduler) finishMatch(res *models.MatchResult) {
	if s.mirror != nil {
		if err := s.mirror.SaveMatchResult(context.Background(), res); err != nil {
			logger.Log.Warnf("room %s: save match result: %v", res.RoomID, err)
		}
	}
	if s.recorder == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RecordTimeout)
		defer cancel()
		if err := s.recorder.RecordMatch(ctx, res); err != nil {
			logger.Log.Warnf("room %s: record match: %v", res.RoomID, err)
		}
	}()
}

// Publish sends the current state of r right away, e.g. after a join or leave.
func (s *Scheduler) Publish(r *room.Room) {
	s.publish(r.Snapshot())
}

func (s *Scheduler) publish(snap *models.GameStateSnapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(snap.RoomID, snap); err != nil {
		if s.metrics != nil {
			s.metrics.PublishErrors.Inc()
		}
		logger.Log.Debugf("room %s: publish: %v", snap.RoomID, err)
	}
}

func (s *Scheduler) saveRoom(r *room.Room) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SaveRoomState(context.Background(), r.Record()); err != nil {
		logger.Log.Warnf("room %s: mirror: %v", r.ID, err)
	}
}

func (s *Scheduler) mirrorSweep() {
	for _, r := range s.registry.Rooms() {
		s.saveRoom(r)
		for _, p := range r.PlayerRecords() {
			if err := s.mirror.SavePlayer(context.Background(), p); err != nil {
				logger.Log.Warnf("room %s: mirror player %s: %v", r.ID, p.SocketID, err)
			}
		}
	}
}

func (s *Scheduler) refreshGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveRooms.Set(float64(s.registry.Count()))
	s.metrics.OnlinePlayers.Set(float64(s.registry.PlayerCount()))
}
