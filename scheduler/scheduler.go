// scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/wfunc/blackjackserver/logger"
)

// Advancer is the slice of the game engine the scheduler drives.
type Advancer interface {
	AdvanceExpired(ctx context.Context, roomID string) error
}

// RoomLister enumerates the rooms the sweep must visit.
type RoomLister interface {
	ListActiveRoomIDs() ([]string, error)
}

// Scheduler sweeps every active room on a fixed tick and forces
// expired stages forward. It holds no per-room timers: the deadline
// lives inside the stage itself, so a restarted process resumes
// enforcement on its first tick with no recovery step. One sweep per
// room runs at a time; a tick that fires while the previous sweep is
// still working is skipped.
type Scheduler struct {
	advancer Advancer
	rooms    RoomLister
	clock    quartz.Clock
	tick     time.Duration

	mutex    sync.Mutex
	sweeping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(advancer Advancer, rooms RoomLister, clock quartz.Clock, tick time.Duration) *Scheduler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		advancer: advancer,
		rooms:    rooms,
		clock:    clock,
		tick:     tick,
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mutex.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mutex.Unlock()

	waiter := s.clock.TickerFunc(ctx, s.tick, func() error {
		s.Sweep(ctx)
		return nil
	})

	go func() {
		defer close(s.done)
		_ = waiter.Wait()
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	cancel, done := s.cancel, s.done
	s.mutex.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep visits every active room once. Errors are logged per room so
// one broken room cannot stall deadline enforcement for the rest.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.mutex.Lock()
	if s.sweeping {
		s.mutex.Unlock()
		return
	}
	s.sweeping = true
	s.mutex.Unlock()
	defer func() {
		s.mutex.Lock()
		s.sweeping = false
		s.mutex.Unlock()
	}()

	roomIDs, err := s.rooms.ListActiveRoomIDs()
	if err != nil {
		logger.Log.Errorf("Failed to list active rooms: %v", err)
		return
	}
	for _, roomID := range roomIDs {
		if ctx.Err() != nil {
			return
		}
		if err := s.advancer.AdvanceExpired(ctx, roomID); err != nil {
			logger.Log.Errorf("Failed to advance room %s: %v", roomID, err)
		}
	}
}
