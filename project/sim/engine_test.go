package sim

import (
	"sync"
	"testing"
	"time"

	"gproc/project"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (self *fakeClock) now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.t
}

func (self *fakeClock) advance(d time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.t = self.t.Add(d)
}

func segment(x0, x1 float64, feed uint32) project.Segment {
	seg := project.Segment{Feed: feed}
	seg.From[project.X_AXIS] = x0
	seg.To[project.X_AXIS] = x1
	return seg
}

func TestEngineCompletesOnSchedule(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(clock.now)
	// 10 mm at 600 mm/min takes one second
	if err := engine.Enqueue(segment(0, 0.010, 600)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.Idle() {
		t.Fatalf("engine idle right after enqueue")
	}
	clock.advance(900 * time.Millisecond)
	if engine.Idle() {
		t.Fatalf("move finished early")
	}
	clock.advance(100 * time.Millisecond)
	if !engine.Idle() {
		t.Fatalf("move not finished after one second")
	}
	if engine.Register(project.HW_AXIS_X) != 10000000 {
		t.Fatalf("unexpected register %d", engine.Register(project.HW_AXIS_X))
	}
}

func TestEngineSpeedOverride(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(clock.now)
	if old := engine.SetSpeedOverride(2); old != 1 {
		t.Fatalf("unexpected old factor %v", old)
	}
	engine.Enqueue(segment(0, 0.010, 600))
	clock.advance(500 * time.Millisecond)
	if !engine.Idle() {
		t.Fatalf("override not applied")
	}
}

func fillQueue(t *testing.T, engine *Engine) {
	t.Helper()
	for i := 0; i < MAX_QUEUE_DEPTH; i++ {
		if err := engine.Enqueue(segment(0, 0.001, 60)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
}

func TestEngineFullQueueBlocks(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(clock.now)
	fillQueue(t, engine)

	done := make(chan error, 1)
	go func() {
		done <- engine.Enqueue(segment(0, 0.001, 60))
	}()
	select {
	case err := <-done:
		t.Fatalf("enqueue on a full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	// each move takes one second, so this retires the first one
	clock.advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("enqueue still blocked after a slot was freed")
	}
}

func TestEngineAbort(t *testing.T) {
	clock := newFakeClock()
	engine := NewEngine(clock.now)
	fillQueue(t, engine)
	engine.Abort()
	if !engine.Idle() {
		t.Fatalf("engine busy after abort")
	}
	if err := engine.Enqueue(segment(0, 0.001, 60)); err != nil {
		t.Fatalf("enqueue after abort: %v", err)
	}
}

func TestEngineAdjustOrigin(t *testing.T) {
	engine := NewEngine(nil)
	engine.TimeScale = 0
	seg := project.Segment{Feed: 100}
	seg.To[project.E_AXIS] = 0.005
	engine.Enqueue(seg)
	if engine.Register(project.HW_AXIS_E) != 5000000 {
		t.Fatalf("unexpected E register %d", engine.Register(project.HW_AXIS_E))
	}
	engine.AdjustOrigin(project.HW_AXIS_E, 5000000)
	if engine.Register(project.HW_AXIS_E) != 0 {
		t.Fatalf("origin not rebased: %d", engine.Register(project.HW_AXIS_E))
	}
	seg.From[project.E_AXIS] = 0.005
	seg.To[project.E_AXIS] = 0.007
	engine.Enqueue(seg)
	if engine.Register(project.HW_AXIS_E) != 2000000 {
		t.Fatalf("unexpected E register after rebase %d", engine.Register(project.HW_AXIS_E))
	}
	engine.SetPosition(project.HW_AXIS_E, 42)
	if engine.Register(project.HW_AXIS_E) != 42 {
		t.Fatalf("SetPosition not applied")
	}
}
