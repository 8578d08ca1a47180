package project

import (
	"github.com/pkg/errors"

	"gproc/common/logger"
)

type homeDirection int

const (
	HOME_TO_MIN homeDirection = iota
	HOME_TO_MAX
)

type axisDescriptor struct {
	axis Axis
	hw   int
}

// Homing visits axes in this order.
var homingAxes = [...]axisDescriptor{
	{axis: X_AXIS, hw: HW_AXIS_X},
	{axis: Y_AXIS, hw: HW_AXIS_Y},
	{axis: Z_AXIS, hw: HW_AXIS_Z},
}

func (self *GCodeProcess) search(axis Axis, dir homeDirection, pos *int32, feed uint32) error {
	if dir == HOME_TO_MAX {
		return self.homer.Home_to_max(axis, pos, feed)
	}
	return self.homer.Home_to_min(axis, pos, feed)
}

func (self *GCodeProcess) switch_pos(axis Axis, dir homeDirection) (float64, bool) {
	if dir == HOME_TO_MAX {
		return self.axes.Max_switch_pos(axis)
	}
	return self.axes.Min_switch_pos(axis)
}

// home_axes runs the homing search for every named axis. A switch with a known
// position clears the home offset and resets the engine position register.
func (self *GCodeProcess) home_axes(cmd *Command, feed uint32, dir homeDirection) error {
	for _, d := range homingAxes {
		if !cmd.Seen(d.axis) {
			continue
		}
		current := self.pos.Current.Axis(d.axis)
		home := self.pos.Home.Axis(d.axis)

		machine := *current + *home
		err := self.search(d.axis, dir, &machine, feed)
		*current = machine - *home
		if err != nil {
			return errors.Wrapf(err, "home %s", d.axis)
		}
		if known, ok := self.switch_pos(d.axis, dir); ok {
			*home = 0
			*current = SI2POS(known)
			self.trajectory.SetPosition(d.hw, *home+*current)
		}
	}
	return nil
}

// move_to_origin moves the named axes, or X, Y and Z when none is named, to
// zero in gcode frame.
func (self *GCodeProcess) move_to_origin(cmd *Command, target *Target) error {
	selected := false
	for _, d := range homingAxes {
		if cmd.Seen(d.axis) {
			*target.Axis(d.axis) = 0
			selected = true
		}
	}
	if !selected {
		target.X, target.Y, target.Z = 0, 0, 0
	}
	for _, d := range homingAxes {
		self.clip(d.axis, target)
	}
	return self.move(target, G28_FEED)
}

// calibrate_z re-teaches the Z reference switch: the switch found by homing
// becomes the persisted switch position.
func (self *GCodeProcess) calibrate_z(cmd *Command, target *Target) error {
	if self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("M207: Z axis known position <-> reference switch calibration")
	}
	pos := self.pos
	pos.Home.Z = 0
	if cmd.Seen(Z_AXIS) {
		pos.Current.Z = target.Z
	} else {
		pos.Current.Z = 0
	}
	self.trajectory.SetPosition(HW_AXIS_Z, pos.Home.Z+pos.Current.Z)

	var dir homeDirection
	if _, ok := self.axes.Max_switch_pos(Z_AXIS); ok {
		dir = HOME_TO_MAX
	} else if _, ok := self.axes.Min_switch_pos(Z_AXIS); ok {
		dir = HOME_TO_MIN
	} else {
		logger.Warnf("M207: no Z reference switch configured")
		return nil
	}
	machine := pos.Current.Z + pos.Home.Z
	err := self.search(Z_AXIS, dir, &machine, target.F)
	pos.Current.Z = machine - pos.Home.Z
	if err != nil {
		return errors.Wrap(err, "home Z")
	}
	logger.Infof("M207: update Z calibration switch position to: %f [mm]", POS2MM(pos.Current.Z))
	if err = self.axes.Set_cal_pos(Z_AXIS, POS2SI(pos.Current.Z)); err != nil {
		logger.Errorf("M207: save calibration: %v", err)
	}
	pos.Home.Z = 0
	self.trajectory.SetPosition(HW_AXIS_Z, pos.Home.Z+pos.Current.Z)
	return errors.Wrap(err, "save Z calibration")
}
