package sim

import (
	"fmt"
	"math"
	"time"

	uuid "github.com/satori/go.uuid"

	"gproc/common/lock"
	"gproc/common/logger"
	"gproc/project"
)

const MAX_QUEUE_DEPTH = 64

type request struct {
	id   string
	seg  project.Segment
	done time.Time
}

// Engine is a trajectory engine that completes moves on a virtual schedule:
// each move takes its length over its feed rate, scaled by the speed override.
type Engine struct {
	lock lock.SpinLock
	now  func() time.Time

	position [project.NUM_AXES + 1]int32
	origin   [project.NUM_AXES + 1]int32
	queue    []request
	busy     time.Time
	aborted  int

	speedOverride    float64
	extruderOverride float64
	// TimeScale multiplies move durations; 0 completes moves instantly.
	TimeScale float64
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now, speedOverride: 1, extruderOverride: 1, TimeScale: 1}
}

// Enqueue blocks while MAX_QUEUE_DEPTH moves are still pending.
func (self *Engine) Enqueue(seg project.Segment) error {
	self.lock.Lock()
	defer self.lock.UnLock()
	for self.retire(); len(self.queue) >= MAX_QUEUE_DEPTH; self.retire() {
		self.lock.UnLock()
		waitTick()
		self.lock.Lock()
	}
	req := request{id: uuid.NewV4().String(), seg: seg}
	start := self.now()
	if self.busy.After(start) {
		start = self.busy
	}
	req.done = start.Add(self.duration(seg))
	self.busy = req.done
	self.queue = append(self.queue, req)
	for axis := project.X_AXIS; axis <= project.E_AXIS; axis++ {
		self.position[int(axis)+1] = project.SI2POS(seg.To[axis]) - self.origin[int(axis)+1]
	}
	logger.Debugf("trajectory %s: %v -> %v F%d", req.id, seg.From, seg.To, seg.Feed)
	return nil
}

func (self *Engine) duration(seg project.Segment) time.Duration {
	if seg.Feed == 0 || self.TimeScale == 0 {
		return 0
	}
	var sq float64
	for axis := project.X_AXIS; axis <= project.Z_AXIS; axis++ {
		sq += seg.Delta(axis) * seg.Delta(axis)
	}
	length := math.Sqrt(sq)
	factor := self.speedOverride
	if length == 0 {
		length = math.Abs(seg.Delta(project.E_AXIS))
		factor = self.extruderOverride
	}
	// feed is mm/min, length meters
	seconds := length * 1000 * 60 / (float64(seg.Feed) * factor)
	return time.Duration(seconds * self.TimeScale * float64(time.Second))
}

func (self *Engine) retire() {
	now := self.now()
	n := 0
	for n < len(self.queue) && !self.queue[n].done.After(now) {
		n++
	}
	self.queue = self.queue[n:]
}

func (self *Engine) Idle() bool {
	self.lock.Lock()
	defer self.lock.UnLock()
	self.retire()
	return len(self.queue) == 0
}

func (self *Engine) Abort() {
	self.lock.Lock()
	defer self.lock.UnLock()
	self.aborted += len(self.queue)
	self.queue = nil
	self.busy = time.Time{}
	logger.Warnf("trajectory aborted")
}

// SetPosition loads a hardware position register (1..4) in machine frame.
func (self *Engine) SetPosition(hwAxis int, pos int32) {
	self.lock.Lock()
	defer self.lock.UnLock()
	if hwAxis < 1 || hwAxis > project.NUM_AXES {
		logger.Warnf("set position: bad axis %d", hwAxis)
		return
	}
	self.origin[hwAxis] = 0
	self.position[hwAxis] = pos
}

// AdjustOrigin moves the origin of a register so that machine position pos
// reads as zero.
func (self *Engine) AdjustOrigin(hwAxis int, pos int32) {
	self.lock.Lock()
	defer self.lock.UnLock()
	if hwAxis < 1 || hwAxis > project.NUM_AXES {
		logger.Warnf("adjust origin: bad axis %d", hwAxis)
		return
	}
	self.position[hwAxis] += self.origin[hwAxis] - pos
	self.origin[hwAxis] = pos
}

func (self *Engine) SetSpeedOverride(factor float64) float64 {
	self.lock.Lock()
	defer self.lock.UnLock()
	old := self.speedOverride
	self.speedOverride = factor
	return old
}

func (self *Engine) SetExtruderOverride(factor float64) float64 {
	self.lock.Lock()
	defer self.lock.UnLock()
	old := self.extruderOverride
	self.extruderOverride = factor
	return old
}

func (self *Engine) DumpState() string {
	self.lock.Lock()
	defer self.lock.UnLock()
	self.retire()
	return fmt.Sprintf("trajectory: queued=%d aborted=%d speed=%.3f extruder=%.3f",
		len(self.queue), self.aborted, self.speedOverride, self.extruderOverride)
}

func (self *Engine) DumpPosition() string {
	self.lock.Lock()
	defer self.lock.UnLock()
	return fmt.Sprintf("engine: X=%d, Y=%d, Z=%d, E=%d (origin E=%d)",
		self.position[project.HW_AXIS_X], self.position[project.HW_AXIS_Y],
		self.position[project.HW_AXIS_Z], self.position[project.HW_AXIS_E], self.origin[project.HW_AXIS_E])
}

// Register returns the raw register value of a hardware axis.
func (self *Engine) Register(hwAxis int) int32 {
	self.lock.Lock()
	defer self.lock.UnLock()
	return self.position[hwAxis]
}

func waitTick() {
	time.Sleep(10 * time.Millisecond)
}
