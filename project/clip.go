package project

import "fmt"

// ClipEvent describes a target clamped to a soft limit.
type ClipEvent struct {
	Axis      Axis
	Upper     bool
	Requested int32
	Clipped   int32
	Limit     int32
	Home      int32
}

func (self *ClipEvent) String() string {
	side := "lower"
	if self.Upper {
		side = "upper"
	}
	return fmt.Sprintf("WARNING: Clipping target.%s (%d) to %d due to %s soft limit= %d (home= %d)",
		self.Axis, self.Requested, self.Clipped, side, self.Limit, self.Home)
}

// Clip_move keeps a move from crossing out of the soft limit band in machine
// frame. When the axis already sits outside the band the bound is relaxed to
// its current machine position, so it is never pulled back to the bound.
func Clip_move(limits IAxisConfig, axis Axis, target, current, home int32) (int32, *ClipEvent) {
	if limits == nil {
		return target, nil
	}
	machineCurrent := int64(home) + int64(current)
	machineTarget := int64(home) + int64(target)
	if target >= current {
		limit, ok := limits.Max_soft_limit(axis)
		if !ok {
			return target, nil
		}
		bound := MM2POS(limit)
		ceiling := int64(bound)
		if machineCurrent > ceiling {
			ceiling = machineCurrent
		}
		if machineTarget > ceiling {
			clipped := int32(ceiling - int64(home))
			return clipped, &ClipEvent{Axis: axis, Upper: true, Requested: target, Clipped: clipped, Limit: bound, Home: home}
		}
	} else {
		limit, ok := limits.Min_soft_limit(axis)
		if !ok {
			return target, nil
		}
		bound := MM2POS(limit)
		floor := int64(bound)
		if machineCurrent < floor {
			floor = machineCurrent
		}
		if machineTarget < floor {
			clipped := int32(floor - int64(home))
			return clipped, &ClipEvent{Axis: axis, Upper: false, Requested: target, Clipped: clipped, Limit: bound, Home: home}
		}
	}
	return target, nil
}
