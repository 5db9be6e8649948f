package host

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/ezvizbridge/internal/events"
	"github.com/smazurov/ezvizbridge/internal/executor"
)

type fakeEntity struct {
	id    string
	poll  bool
	block chan struct{}

	mu        sync.Mutex
	available bool
	name      string
	next      func(*fakeEntity) error
	updates   atomic.Int32
}

func (f *fakeEntity) EntityID() string { return f.id }
func (f *fakeEntity) Serial() string   { return "SER-" + f.id }
func (f *fakeEntity) ShouldPoll() bool { return f.poll }

func (f *fakeEntity) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeEntity) Attributes() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"name": f.name, "status": f.available}
}

func (f *fakeEntity) Update(context.Context) error {
	f.updates.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next != nil {
		return f.next(f)
	}
	return nil
}

func newTestPoller(t *testing.T, bus *events.Bus, entities ...Pollable) *Poller {
	t.Helper()
	pool := executor.NewPool(2, quietLogger())
	pool.Start()
	t.Cleanup(pool.Stop)
	return NewPoller(func() []Pollable { return entities }, pool, bus, time.Hour, quietLogger())
}

func waitUpdates(t *testing.T, f *fakeEntity, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.updates.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("entity %s: %d updates, want %d", f.id, f.updates.Load(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollerPublishesOnChange(t *testing.T) {
	bus := events.New()
	received := make(chan events.CameraStateChangedEvent, 4)
	defer bus.Subscribe(func(e events.CameraStateChangedEvent) { received <- e })()

	cam := &fakeEntity{id: "camera.porch", poll: true, name: "Porch"}
	cam.next = func(f *fakeEntity) error { f.available = true; return nil }

	p := newTestPoller(t, bus, cam)
	p.PollAll(context.Background())

	select {
	case e := <-received:
		if e.EntityID != "camera.porch" || !e.Available || e.Serial != "SER-camera.porch" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state change event")
	}

	p.PollAll(context.Background())
	waitUpdates(t, cam, 2)
	select {
	case e := <-received:
		t.Errorf("unchanged poll published %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerFailedUpdateKeepsQuiet(t *testing.T) {
	bus := events.New()
	received := make(chan events.CameraStateChangedEvent, 1)
	defer bus.Subscribe(func(e events.CameraStateChangedEvent) { received <- e })()

	cam := &fakeEntity{id: "camera.down", poll: true}
	cam.next = func(*fakeEntity) error { return errors.New("timeout") }

	p := newTestPoller(t, bus, cam)
	p.PollAll(context.Background())
	waitUpdates(t, cam, 1)

	select {
	case e := <-received:
		t.Errorf("failed poll published %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPollerSkipsOverlappingPolls(t *testing.T) {
	cam := &fakeEntity{id: "camera.slow", poll: true, block: make(chan struct{})}
	p := newTestPoller(t, nil, cam)

	p.PollAll(context.Background())
	waitUpdates(t, cam, 1)
	p.PollAll(context.Background())
	p.PollAll(context.Background())

	close(cam.block)
	p.Stop()

	if got := cam.updates.Load(); got != 1 {
		t.Errorf("updates = %d, want 1 while the first poll was running", got)
	}
}

func TestPollerHonoursShouldPoll(t *testing.T) {
	pushed := &fakeEntity{id: "camera.push", poll: false}
	polled := &fakeEntity{id: "camera.pull", poll: true}

	p := newTestPoller(t, nil, pushed, polled)
	p.PollAll(context.Background())
	waitUpdates(t, polled, 1)
	p.Stop()

	if pushed.updates.Load() != 0 {
		t.Error("entity with ShouldPoll false was polled")
	}
}

func TestPollerStartPollsImmediately(t *testing.T) {
	cam := &fakeEntity{id: "camera.now", poll: true}
	p := newTestPoller(t, nil, cam)

	p.Start(context.Background())
	waitUpdates(t, cam, 1)
	p.Stop()
}

func TestPollerStopWithQueuedPolls(t *testing.T) {
	pool := executor.NewPool(1, quietLogger())
	pool.Start()
	t.Cleanup(pool.Stop)

	release := make(chan struct{})
	first := &fakeEntity{id: "camera.a", poll: true, block: release}
	queued := []*fakeEntity{
		{id: "camera.b", poll: true, block: release},
		{id: "camera.c", poll: true, block: release},
	}
	p := NewPoller(func() []Pollable { return []Pollable{first, queued[0], queued[1]} },
		pool, nil, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	waitUpdates(t, first, 1)
	cancel()
	close(release)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancel with polls still queued")
	}

	for _, e := range queued {
		if got := e.updates.Load(); got != 0 {
			t.Errorf("%s: updates = %d after cancel, want 0", e.id, got)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inflight) != 0 {
		t.Errorf("inflight = %v, want empty", p.inflight)
	}
}
