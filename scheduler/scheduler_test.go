package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/blackjackserver/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type fakeAdvancer struct {
	mu      sync.Mutex
	visited []string
	fail    map[string]error
}

func (f *fakeAdvancer) AdvanceExpired(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, roomID)
	if err, ok := f.fail[roomID]; ok {
		return err
	}
	return nil
}

func (f *fakeAdvancer) visits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

type fakeLister struct {
	mu    sync.Mutex
	rooms []string
	err   error
}

func (f *fakeLister) ListActiveRoomIDs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rooms...), f.err
}

func TestSweepVisitsEveryActiveRoom(t *testing.T) {
	advancer := &fakeAdvancer{}
	lister := &fakeLister{rooms: []string{"a", "b", "c"}}
	s := NewScheduler(advancer, lister, quartz.NewMock(t), time.Second)

	s.Sweep(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, advancer.visits())
}

func TestSweepContinuesPastFailingRooms(t *testing.T) {
	advancer := &fakeAdvancer{fail: map[string]error{"b": errors.New("boom")}}
	lister := &fakeLister{rooms: []string{"a", "b", "c"}}
	s := NewScheduler(advancer, lister, quartz.NewMock(t), time.Second)

	s.Sweep(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, advancer.visits(), "one broken room must not stop the sweep")
}

func TestTickerDrivesSweeps(t *testing.T) {
	advancer := &fakeAdvancer{}
	lister := &fakeLister{rooms: []string{"a"}}
	clock := quartz.NewMock(t)
	s := NewScheduler(advancer, lister, clock, time.Second)

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop()

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second).MustWait(ctx)
		require.Len(t, advancer.visits(), i)
	}
}

func TestStopHaltsTheLoop(t *testing.T) {
	advancer := &fakeAdvancer{}
	lister := &fakeLister{rooms: []string{"a"}}
	clock := quartz.NewMock(t)
	s := NewScheduler(advancer, lister, clock, time.Second)

	s.Start(context.Background())
	s.Stop()

	assert.Empty(t, advancer.visits(), "no tick fired, no sweep ran")
}
