package sim

import (
	"sync"

	"github.com/pkg/errors"

	"gproc/common/logger"
	"gproc/project"
)

// Switches reports limit switches declared in the machine config. A switch
// reads 1 while the axis rests on it.
type Switches struct {
	mu    sync.Mutex
	cfg   *project.MachineConfig
	atMin [project.NUM_AXES]bool
	atMax [project.NUM_AXES]bool
}

func NewSwitches(cfg *project.MachineConfig) *Switches {
	return &Switches{cfg: cfg}
}

func (self *Switches) Has_min(axis project.Axis) bool {
	return self.cfg.Axis_limits(axis).HasMinSwitch
}

func (self *Switches) Has_max(axis project.Axis) bool {
	return self.cfg.Axis_limits(axis).HasMaxSwitch
}

func (self *Switches) Min_state(axis project.Axis) int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return state(self.atMin[axis])
}

func (self *Switches) Max_state(axis project.Axis) int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return state(self.atMax[axis])
}

func (self *Switches) park(axis project.Axis, min bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.atMin[axis] = min
	self.atMax[axis] = !min
}

func (self *Switches) release(axis project.Axis) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.atMin[axis] = false
	self.atMax[axis] = false
}

func state(on bool) int {
	if on {
		return 1
	}
	return 0
}

// Homer searches for a switch by placing the axis at the switch's machine
// position. An axis without a switch stops at its travel bound.
type Homer struct {
	cfg      *project.MachineConfig
	switches *Switches
	engine   *Engine
}

func NewHomer(cfg *project.MachineConfig, switches *Switches, engine *Engine) *Homer {
	return &Homer{cfg: cfg, switches: switches, engine: engine}
}

func (self *Homer) Home_to_min(axis project.Axis, pos *int32, feed uint32) error {
	return self.home(axis, pos, feed, true)
}

func (self *Homer) Home_to_max(axis project.Axis, pos *int32, feed uint32) error {
	return self.home(axis, pos, feed, false)
}

func (self *Homer) home(axis project.Axis, pos *int32, feed uint32, toMin bool) error {
	if axis > project.Z_AXIS {
		return errors.Errorf("cannot home axis %s", axis)
	}
	limits := self.cfg.Axis_limits(axis)
	var stop int32
	switch {
	case toMin && limits.MinSwitchPos != nil:
		stop = project.MM2POS(*limits.MinSwitchPos)
	case !toMin && limits.MaxSwitchPos != nil:
		stop = project.MM2POS(*limits.MaxSwitchPos)
	case !toMin:
		stop = project.MM2POS(limits.Travel)
	}
	for !self.engine.Idle() {
		waitTick()
	}
	logger.Infof("homing %s to %s at F%d: %d -> %d", axis, direction(toMin), feed, *pos, stop)
	*pos = stop
	self.engine.SetPosition(int(axis)+1, stop)
	if (toMin && limits.HasMinSwitch) || (!toMin && limits.HasMaxSwitch) {
		self.switches.park(axis, toMin)
	} else {
		self.switches.release(axis)
	}
	return nil
}

func direction(toMin bool) string {
	if toMin {
		return "min"
	}
	return "max"
}

// Machine tracks main power and stepper driver enables.
type Machine struct {
	mu      sync.Mutex
	powered bool
	drivers bool
}

func NewMachine() *Machine {
	return &Machine{drivers: true}
}

func (self *Machine) Power_on() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.powered {
		logger.Info("power on")
	}
	self.powered = true
	self.drivers = true
}

func (self *Machine) Power_off() {
	self.mu.Lock()
	defer self.mu.Unlock()
	logger.Info("power off")
	self.powered = false
}

func (self *Machine) Disable_drivers() {
	self.mu.Lock()
	defer self.mu.Unlock()
	logger.Info("drivers disabled")
	self.drivers = false
}

func (self *Machine) State() (powered, drivers bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.powered, self.drivers
}
