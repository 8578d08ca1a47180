package project

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gproc/common/logger"
	"gproc/common/utils/sys"
)

// Debug flag bits, set with M111.
const (
	DEBUG_GCODE_PROCESS = 1
	DEBUG_POSITION      = 2
	DEBUG_ECHO          = 4
)

const (
	DEFAULT_FEED = 3000
	G0_FEED      = 100000
	G28_FEED     = 99999
)

type handlerFunc func(cmd *Command, target *Target) error

type handler struct {
	fn         handlerFunc
	diagnostic bool
}

type Options struct {
	DefaultFeed  uint32
	PollInterval time.Duration
	// EnforceOrder drains motion before reports and fan/power changes.
	EnforceOrder bool
	// Diagnostics enables M136, M240, M241, M250, M253 and M254.
	Diagnostics bool
	LaserOnDuty float64
	Firmware    FirmwareInfo
	Channels    ChannelNames
}

func DefaultOptions() Options {
	return Options{
		DefaultFeed:  DEFAULT_FEED,
		PollInterval: DEFAULT_POLL_INTERVAL,
		LaserOnDuty:  1.0,
		Firmware:     DefaultFirmwareInfo(),
		Channels:     DefaultChannelNames(),
	}
}

type Collaborators struct {
	Trajectory ITrajectory
	Heaters    IHeaters
	Homer      IHomer
	Switches   ILimitSwitches
	Machine    IMachine
	Axes       IAxisConfig
}

// GCodeProcess owns the position model and routes each command record to its
// handler. Commands are processed one at a time.
type GCodeProcess struct {
	mu    sync.Mutex
	owner uint64

	opts       Options
	trajectory ITrajectory
	heaters    IHeaters
	homer      IHomer
	switches   ILimitSwitches
	machine    IMachine
	axes       IAxisConfig

	pos      *PositionState
	channels *Channels
	signals  *SlowSignals
	firmware *Firmware

	tool       int
	nextTool   int
	debugFlags int

	gHandlers        map[int]*handler
	mHandlers        map[int]*handler
	Output_callbacks []func(string)
	halt             func()
}

func NewGCodeProcess(opts Options, c Collaborators) (*GCodeProcess, error) {
	if c.Trajectory == nil || c.Heaters == nil || c.Homer == nil || c.Switches == nil ||
		c.Machine == nil || c.Axes == nil {
		return nil, errors.Wrap(ErrConfig, "missing collaborator")
	}
	if opts.DefaultFeed == 0 {
		opts.DefaultFeed = DEFAULT_FEED
	}
	channels, err := ResolveChannels(c.Heaters, opts.Channels)
	if err != nil {
		return nil, err
	}
	firmware, err := NewFirmware(opts.Firmware)
	if err != nil {
		return nil, err
	}
	self := &GCodeProcess{
		opts:       opts,
		trajectory: c.Trajectory,
		heaters:    c.Heaters,
		homer:      c.Homer,
		switches:   c.Switches,
		machine:    c.Machine,
		axes:       c.Axes,
		pos:        NewPositionState(opts.DefaultFeed),
		channels:   channels,
		signals:    NewSlowSignals(c.Heaters, opts.PollInterval),
		firmware:   firmware,
		gHandlers:  map[int]*handler{},
		mHandlers:  map[int]*handler{},
		halt:       idleForever,
	}
	self.registerGCodes()
	self.registerMCodes()
	return self, nil
}

func idleForever() {
	for {
		time.Sleep(time.Hour)
	}
}

func (self *GCodeProcess) registerGCodes() {
	self.Register_command(CLASS_G, 0, self.cmd_G0, false)
	self.Register_command(CLASS_G, 1, self.cmd_G1, false)
	self.Register_command(CLASS_G, 4, self.cmd_G4, false)
	self.Register_command(CLASS_G, 20, self.cmd_G20, false)
	self.Register_command(CLASS_G, 21, self.cmd_G21, false)
	self.Register_command(CLASS_G, 28, self.cmd_G28, false)
	self.Register_command(CLASS_G, 30, self.cmd_G30, false)
	self.Register_command(CLASS_G, 90, self.cmd_G90, false)
	self.Register_command(CLASS_G, 91, self.cmd_G91, false)
	self.Register_command(CLASS_G, 92, self.cmd_G92, false)
	self.Register_command(CLASS_G, 161, self.cmd_G161, false)
	self.Register_command(CLASS_G, 162, self.cmd_G162, false)
	self.Register_command(CLASS_G, 255, self.cmd_G255, false)
}

// Register_command installs fn for a code. Diagnostic handlers are only
// reachable when Options.Diagnostics is set.
func (self *GCodeProcess) Register_command(class CodeClass, code int, fn handlerFunc, diagnostic bool) {
	table := self.gHandlers
	if class == CLASS_M {
		table = self.mHandlers
	}
	if _, ok := table[code]; ok {
		panic(fmt.Sprintf("%c%d already registered", class, code))
	}
	table[code] = &handler{fn: fn, diagnostic: diagnostic}
}

func (self *GCodeProcess) lookup(class CodeClass, code int) handlerFunc {
	table := self.gHandlers
	if class == CLASS_M {
		table = self.mHandlers
	} else if class != CLASS_G {
		return nil
	}
	h, ok := table[code]
	if !ok || (h.diagnostic && !self.opts.Diagnostics) {
		return nil
	}
	return h.fn
}

func (self *GCodeProcess) Register_output_handler(cb func(string)) {
	self.Output_callbacks = append(self.Output_callbacks, cb)
}

// Set_halt replaces the idle loop entered after an emergency stop.
func (self *GCodeProcess) Set_halt(fn func()) {
	self.halt = fn
}

func (self *GCodeProcess) Respond_raw(msg string) {
	if len(self.Output_callbacks) == 0 {
		logger.Info(msg)
		return
	}
	for _, cb := range self.Output_callbacks {
		cb(msg)
	}
}

// Process runs one command record to completion.
func (self *GCodeProcess) Process(cmd *Command) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.checkOwner()

	if self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("process %s", cmd.String())
	}
	var fn handlerFunc
	if cmd.Class != CLASS_NONE {
		// an unknown code leaves feed and tool untouched
		if fn = self.lookup(cmd.Class, cmd.Code); fn == nil {
			err := &UnknownCodeError{Class: cmd.Class, Code: cmd.Code}
			self.Respond_raw("E: " + err.Error())
			return err
		}
	}
	target := self.pos.Resolve(cmd)
	if cmd.SeenT {
		self.nextTool = cmd.T
	}
	if fn == nil {
		return nil
	}
	if err := fn(cmd, &target); err != nil {
		logger.Errorf("%c%d error: %v", cmd.Class, cmd.Code, err)
		return errors.Wrapf(err, "%c%d", cmd.Class, cmd.Code)
	}
	if cmd.Class == CLASS_G && self.debugFlags&DEBUG_POSITION != 0 {
		logger.Debugf("position: %s", self.trajectory.DumpPosition())
	}
	return nil
}

func (self *GCodeProcess) checkOwner() {
	gid := sys.GetGID()
	if self.owner == 0 {
		self.owner = gid
		logger.Debugf("gcode process bound to goroutine %d", gid)
	} else if self.owner != gid {
		logger.Warnf("command from goroutine %d, gcode process is bound to %d", gid, self.owner)
	}
}

func (self *GCodeProcess) Debug_flags() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.debugFlags
}

// Position returns a copy of the position model.
func (self *GCodeProcess) Position() PositionState {
	self.mu.Lock()
	defer self.mu.Unlock()
	return *self.pos
}

func (self *GCodeProcess) Tool() (current, next int) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.tool, self.nextTool
}

func (self *GCodeProcess) Channels() *Channels {
	return self.channels
}

func (self *GCodeProcess) wait_for_motion() {
	waitUntil(self.signals.interval, self.trajectory.Idle)
}

func (self *GCodeProcess) enforce_order() {
	if self.opts.EnforceOrder {
		self.wait_for_motion()
	}
}

func (self *GCodeProcess) clip_seen(cmd *Command, target *Target) {
	for _, axis := range []Axis{X_AXIS, Y_AXIS, Z_AXIS} {
		if cmd.Seen(axis) {
			self.clip(axis, target)
		}
	}
}

func (self *GCodeProcess) clip(axis Axis, target *Target) {
	value := target.Axis(axis)
	clipped, event := Clip_move(self.axes, axis, *value, *self.pos.Current.Axis(axis), *self.pos.Home.Axis(axis))
	if event != nil {
		msg := event.String()
		logger.Warn(msg)
		self.Respond_raw(msg)
	}
	*value = clipped
}

// G0 and G1 share the move path; G0 runs at a feed only the per axis limits constrain.
func (self *GCodeProcess) cmd_G0(cmd *Command, target *Target) error {
	self.clip_seen(cmd, target)
	return self.move(target, G0_FEED)
}

func (self *GCodeProcess) cmd_G1(cmd *Command, target *Target) error {
	self.clip_seen(cmd, target)
	return self.move(target, 0)
}

func (self *GCodeProcess) cmd_G4(cmd *Command, target *Target) error {
	self.wait_for_motion()
	if cmd.SeenP && cmd.P > 0 {
		time.Sleep(time.Duration(cmd.P) * time.Millisecond)
	}
	return nil
}

func (self *GCodeProcess) cmd_G20(cmd *Command, target *Target) error {
	self.pos.Inches = true
	return nil
}

func (self *GCodeProcess) cmd_G21(cmd *Command, target *Target) error {
	self.pos.Inches = false
	return nil
}

func (self *GCodeProcess) cmd_G28(cmd *Command, target *Target) error {
	return self.move_to_origin(cmd, target)
}

// G30 moves to the given point and then to the origin.
func (self *GCodeProcess) cmd_G30(cmd *Command, target *Target) error {
	self.clip_seen(cmd, target)
	if err := self.move(target, 0); err != nil {
		return err
	}
	return self.move_to_origin(cmd, target)
}

func (self *GCodeProcess) cmd_G90(cmd *Command, target *Target) error {
	self.pos.Relative = false
	return nil
}

func (self *GCodeProcess) cmd_G91(cmd *Command, target *Target) error {
	self.pos.Relative = true
	return nil
}

func (self *GCodeProcess) cmd_G92(cmd *Command, target *Target) error {
	self.wait_for_motion()
	rebase, origin := self.pos.SetPosition(target, cmd.SeenAxes, self.axes.E_axis_is_always_relative())
	if rebase {
		self.trajectory.AdjustOrigin(HW_AXIS_E, origin)
	}
	return nil
}

func (self *GCodeProcess) cmd_G161(cmd *Command, target *Target) error {
	self.debug_homing("G161", cmd)
	return self.home_axes(cmd, target.F, HOME_TO_MIN)
}

func (self *GCodeProcess) cmd_G162(cmd *Command, target *Target) error {
	self.debug_homing("G162", cmd)
	return self.home_axes(cmd, target.F, HOME_TO_MAX)
}

// G255 dumps the engine state; S0 skips the wait for motion to finish.
func (self *GCodeProcess) cmd_G255(cmd *Command, target *Target) error {
	if !cmd.SeenS || cmd.S != 0 {
		self.wait_for_motion()
	}
	self.Respond_raw(self.trajectory.DumpState())
	return nil
}

func (self *GCodeProcess) debug_homing(name string, cmd *Command) {
	if self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("%s: %s", name, cmd.String())
	}
}
