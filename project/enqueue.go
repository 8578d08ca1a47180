package project

import (
	"github.com/pkg/errors"

	"gproc/common/logger"
)

// enqueue hands target to the trajectory engine in machine frame. Pending
// temperature waits are honoured first. With an always-relative extruder the
// engine origin absorbs the E move and target.E is reset to zero.
func (self *GCodeProcess) enqueue(target *Target) error {
	if self.signals.Pending() {
		if self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
			logger.Debugf("defer move until temperature is stable")
		}
		self.signals.Wait()
	}
	if self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("enqueue_pos(X=%d, Y=%d, Z=%d, E=%d, F=%d)", target.X, target.Y, target.Z, target.E, target.F)
	}
	seg := Segment{Feed: target.F}
	for axis := X_AXIS; axis <= E_AXIS; axis++ {
		home := *self.pos.Home.Axis(axis)
		seg.From[axis] = POS2SI(home + *self.pos.Current.Axis(axis))
		seg.To[axis] = POS2SI(home + *target.Axis(axis))
	}
	if err := self.trajectory.Enqueue(seg); err != nil {
		return errors.Wrap(err, "enqueue move")
	}
	if self.axes.E_axis_is_always_relative() {
		self.trajectory.AdjustOrigin(HW_AXIS_E, self.pos.Home.E+target.E)
		target.E = 0
	}
	return nil
}

// move enqueues target at feed (0 keeps the standing feed) and records it as
// the current position.
func (self *GCodeProcess) move(target *Target, feed uint32) error {
	standing := target.F
	if feed != 0 {
		target.F = feed
	}
	err := self.enqueue(target)
	target.F = standing
	if err != nil {
		return err
	}
	self.pos.Commit(target)
	return nil
}
