package project

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gproc/common/config"
)

type fakeTrajectory struct {
	mu         sync.Mutex
	events     *[]string
	segments   []Segment
	busyPolls  int
	positions  map[int]int32
	origins    map[int]int32
	speed      float64
	extruder   float64
	enqueueErr error
}

func newFakeTrajectory(events *[]string) *fakeTrajectory {
	return &fakeTrajectory{events: events, positions: map[int]int32{}, origins: map[int]int32{}, speed: 1, extruder: 1}
}

func (self *fakeTrajectory) record(ev string) {
	*self.events = append(*self.events, ev)
}

func (self *fakeTrajectory) Enqueue(seg Segment) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.enqueueErr != nil {
		return self.enqueueErr
	}
	self.segments = append(self.segments, seg)
	self.record("enqueue")
	return nil
}

// Idle reports busy for busyPolls calls after being armed.
func (self *fakeTrajectory) Idle() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.busyPolls > 0 {
		self.busyPolls--
		return false
	}
	return true
}

func (self *fakeTrajectory) Abort() {
	self.record("abort")
}

func (self *fakeTrajectory) SetPosition(hwAxis int, pos int32) {
	self.positions[hwAxis] = pos
	self.record(fmt.Sprintf("set_position %d %d", hwAxis, pos))
}

func (self *fakeTrajectory) AdjustOrigin(hwAxis int, pos int32) {
	self.origins[hwAxis] = pos
	self.record(fmt.Sprintf("adjust_origin %d %d", hwAxis, pos))
}

func (self *fakeTrajectory) SetSpeedOverride(factor float64) float64 {
	old := self.speed
	self.speed = factor
	return old
}

func (self *fakeTrajectory) SetExtruderOverride(factor float64) float64 {
	old := self.extruder
	self.extruder = factor
	return old
}

func (self *fakeTrajectory) DumpState() string {
	return "state"
}

func (self *fakeTrajectory) DumpPosition() string {
	return "engine position"
}

type fakeTag string

func (self fakeTag) Tag_name() string {
	return string(self)
}

type fakeHeaters struct {
	mu        sync.Mutex
	tags      map[string]fakeTag
	setpoints map[ChannelTag]float64
	enabled   map[ChannelTag]bool
	celsius   map[ChannelTag]float64
	pids      map[ChannelTag]config.PIDParams
	pwm       map[ChannelTag]float64
	raw       map[ChannelTag]float64
	// reachedAfter counts Temp_reached polls answered false.
	reachedAfter int
	polls        int
	saved        int
}

func newFakeHeaters(names ...string) *fakeHeaters {
	self := &fakeHeaters{
		tags:      map[string]fakeTag{},
		setpoints: map[ChannelTag]float64{},
		enabled:   map[ChannelTag]bool{},
		celsius:   map[ChannelTag]float64{},
		pids:      map[ChannelTag]config.PIDParams{},
		pwm:       map[ChannelTag]float64{},
		raw:       map[ChannelTag]float64{},
	}
	for _, name := range names {
		self.tags[name] = fakeTag(name)
	}
	return self
}

func (self *fakeHeaters) lookup(name string) ChannelTag {
	if tag, ok := self.tags[name]; ok {
		return tag
	}
	return nil
}

func (self *fakeHeaters) Lookup_heater(name string) ChannelTag { return self.lookup(name) }
func (self *fakeHeaters) Lookup_temp(name string) ChannelTag   { return self.lookup(name) }
func (self *fakeHeaters) Lookup_pwm(name string) ChannelTag    { return self.lookup(name) }

func (self *fakeHeaters) Set_setpoint(heater ChannelTag, celsius float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.setpoints[heater] = celsius
	return nil
}

func (self *fakeHeaters) Get_setpoint(heater ChannelTag) (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.setpoints[heater], nil
}

func (self *fakeHeaters) Enable(heater ChannelTag, on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.enabled[heater] = on
	return nil
}

func (self *fakeHeaters) Temp_reached(heater ChannelTag) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.polls++
	if self.reachedAfter > 0 {
		self.reachedAfter--
		return false
	}
	return true
}

func (self *fakeHeaters) Get_celsius(channel ChannelTag) (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.celsius[channel], nil
}

func (self *fakeHeaters) Get_pid(heater ChannelTag) (config.PIDParams, error) {
	return self.pids[heater], nil
}

func (self *fakeHeaters) Set_pid(heater ChannelTag, pid config.PIDParams) error {
	self.pids[heater] = pid
	return nil
}

func (self *fakeHeaters) Save_settings() error {
	self.saved++
	return nil
}

func (self *fakeHeaters) Set_raw_output(heater ChannelTag, duty float64) error {
	self.raw[heater] = duty
	return nil
}

func (self *fakeHeaters) Set_pwm_output(pwm ChannelTag, duty float64) error {
	self.pwm[pwm] = duty
	return nil
}

type homeCall struct {
	axis  Axis
	toMax bool
	from  int32
	feed  uint32
}

// fakeHomer moves the axis to stop[axis] (machine frame).
type fakeHomer struct {
	calls []homeCall
	stop  map[Axis]int32
}

func (self *fakeHomer) home(axis Axis, pos *int32, feed uint32, toMax bool) error {
	self.calls = append(self.calls, homeCall{axis: axis, toMax: toMax, from: *pos, feed: feed})
	*pos = self.stop[axis]
	return nil
}

func (self *fakeHomer) Home_to_min(axis Axis, pos *int32, feed uint32) error {
	return self.home(axis, pos, feed, false)
}

func (self *fakeHomer) Home_to_max(axis Axis, pos *int32, feed uint32) error {
	return self.home(axis, pos, feed, true)
}

type fakeSwitches struct {
	min map[Axis]int
	max map[Axis]int
}

func (self *fakeSwitches) Has_min(axis Axis) bool {
	_, ok := self.min[axis]
	return ok
}

func (self *fakeSwitches) Has_max(axis Axis) bool {
	_, ok := self.max[axis]
	return ok
}

func (self *fakeSwitches) Min_state(axis Axis) int { return self.min[axis] }
func (self *fakeSwitches) Max_state(axis Axis) int { return self.max[axis] }

type fakeMachine struct {
	events *[]string
}

func (self *fakeMachine) Power_on()        { *self.events = append(*self.events, "power_on") }
func (self *fakeMachine) Power_off()       { *self.events = append(*self.events, "power_off") }
func (self *fakeMachine) Disable_drivers() { *self.events = append(*self.events, "disable_drivers") }

type fakeAxes struct {
	maxSoft   map[Axis]float64
	minSoft   map[Axis]float64
	maxSwitch map[Axis]float64
	minSwitch map[Axis]float64
	calPos    map[Axis]float64
	eRelative bool
}

func newFakeAxes() *fakeAxes {
	return &fakeAxes{
		maxSoft:   map[Axis]float64{},
		minSoft:   map[Axis]float64{},
		maxSwitch: map[Axis]float64{},
		minSwitch: map[Axis]float64{},
		calPos:    map[Axis]float64{},
	}
}

func lookupLimit(m map[Axis]float64, axis Axis) (float64, bool) {
	v, ok := m[axis]
	return v, ok
}

func (self *fakeAxes) Max_soft_limit(axis Axis) (float64, bool) { return lookupLimit(self.maxSoft, axis) }
func (self *fakeAxes) Min_soft_limit(axis Axis) (float64, bool) { return lookupLimit(self.minSoft, axis) }
func (self *fakeAxes) Max_switch_pos(axis Axis) (float64, bool) { return lookupLimit(self.maxSwitch, axis) }
func (self *fakeAxes) Min_switch_pos(axis Axis) (float64, bool) { return lookupLimit(self.minSwitch, axis) }

func (self *fakeAxes) Set_cal_pos(axis Axis, pos float64) error {
	self.calPos[axis] = pos
	return nil
}

func (self *fakeAxes) E_axis_is_always_relative() bool { return self.eRelative }

func (self *fakeAxes) Set_e_axis_mode(relative bool) bool {
	old := self.eRelative
	self.eRelative = relative
	return old
}

type testRig struct {
	gp       *GCodeProcess
	events   []string
	traj     *fakeTrajectory
	heaters  *fakeHeaters
	homer    *fakeHomer
	switches *fakeSwitches
	axes     *fakeAxes
	output   []string
	halted   int
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()
	rig := &testRig{}
	rig.traj = newFakeTrajectory(&rig.events)
	rig.heaters = newFakeHeaters("heater_extruder", "heater_bed", "temp_extruder", "temp_bed", "pwm_laser_power", "pwm_fan")
	rig.homer = &fakeHomer{stop: map[Axis]int32{}}
	rig.switches = &fakeSwitches{min: map[Axis]int{}, max: map[Axis]int{}}
	rig.axes = newFakeAxes()
	opts.PollInterval = time.Millisecond
	if opts.Channels == (ChannelNames{}) {
		opts.Channels = DefaultChannelNames()
	}
	gp, err := NewGCodeProcess(opts, Collaborators{
		Trajectory: rig.traj,
		Heaters:    rig.heaters,
		Homer:      rig.homer,
		Switches:   rig.switches,
		Machine:    &fakeMachine{events: &rig.events},
		Axes:       rig.axes,
	})
	if err != nil {
		t.Fatalf("NewGCodeProcess: %v", err)
	}
	gp.Register_output_handler(func(msg string) {
		rig.output = append(rig.output, msg)
	})
	gp.Set_halt(func() {
		rig.halted++
	})
	rig.gp = gp
	return rig
}

func (self *testRig) run(t *testing.T, cmd *Command) {
	t.Helper()
	if err := self.gp.Process(cmd); err != nil {
		t.Fatalf("%s: unexpected error: %v", cmd.String(), err)
	}
}

func (self *testRig) joined() string {
	return strings.Join(self.output, "\n")
}

func gcode(code int) *Command {
	return &Command{Class: CLASS_G, Code: code}
}

func mcode(code int) *Command {
	return &Command{Class: CLASS_M, Code: code}
}

func (self *Command) with(axis Axis, value int32) *Command {
	self.Axes[axis] = value
	self.SeenAxes[axis] = true
	return self
}

func (self *Command) withF(f uint32) *Command {
	self.F, self.SeenF = f, true
	return self
}

func (self *Command) withS(s float64) *Command {
	self.S, self.SeenS = s, true
	return self
}

func (self *Command) withP(p int) *Command {
	self.P, self.SeenP = p, true
	return self
}
