package project

import "math"

// Position units: integer nanometers.
const (
	NM_PER_MM = 1000000
	NM_PER_M  = 1000000000
)

func MM2POS(mm float64) int32 {
	return int32(math.Round(mm * NM_PER_MM))
}

func POS2MM(pos int32) float64 {
	return float64(pos) / NM_PER_MM
}

func SI2POS(m float64) int32 {
	return int32(math.Round(m * NM_PER_M))
}

func POS2SI(pos int32) float64 {
	return float64(pos) / NM_PER_M
}

// Target is a four axis position plus feed rate.
type Target struct {
	X, Y, Z, E int32
	F          uint32
}

func (self *Target) Axis(axis Axis) *int32 {
	switch axis {
	case X_AXIS:
		return &self.X
	case Y_AXIS:
		return &self.Y
	case Z_AXIS:
		return &self.Z
	default:
		return &self.E
	}
}

// PositionState is the single model of where the tool is.
// Current is gcode frame; machine frame is always Current + Home.
type PositionState struct {
	Current  Target
	Home     Target
	Relative bool
	Inches   bool
	Feed     uint32
}

func NewPositionState(defaultFeed uint32) *PositionState {
	return &PositionState{Feed: defaultFeed}
}

func (self *PositionState) Machine(axis Axis) int32 {
	return *self.Home.Axis(axis) + *self.Current.Axis(axis)
}

// Resolve turns a command into an absolute four axis target: the standing feed is
// updated or reused, relative values are added to the current position and absent
// axes inherit the current position.
func (self *PositionState) Resolve(cmd *Command) Target {
	if cmd.SeenF {
		self.Feed = cmd.F
	}
	target := Target{F: self.Feed}
	for axis := X_AXIS; axis <= E_AXIS; axis++ {
		current := *self.Current.Axis(axis)
		value := current
		if cmd.SeenAxes[axis] {
			value = cmd.Axes[axis]
			if self.Relative {
				value += current
			}
		}
		*target.Axis(axis) = value
	}
	return target
}

// SetPosition applies an origin reset. When the extruder is not always-relative and
// E is reset to exactly zero, the home offset for E is dropped and the caller must
// re-base the engine's extruder origin to the returned machine position.
func (self *PositionState) SetPosition(req *Target, seen [NUM_AXES]bool, eAlwaysRelative bool) (rebaseE bool, originE int32) {
	anySeen := false
	for _, axis := range []Axis{X_AXIS, Y_AXIS, Z_AXIS} {
		if !seen[axis] {
			continue
		}
		current := self.Current.Axis(axis)
		*self.Home.Axis(axis) += *current - *req.Axis(axis)
		*current = *req.Axis(axis)
		anySeen = true
	}
	if seen[E_AXIS] {
		if !eAlwaysRelative && req.E == 0 {
			rebaseE = true
			originE = self.Home.E + self.Current.E
			self.Home.E = 0
		} else {
			self.Home.E += self.Current.E - req.E
		}
		self.Current.E = req.E
		anySeen = true
	}
	if !anySeen {
		for axis := X_AXIS; axis <= E_AXIS; axis++ {
			*self.Home.Axis(axis) += *self.Current.Axis(axis)
			*self.Current.Axis(axis) = 0
		}
	}
	return rebaseE, originE
}

// Commit records a target handed to the engine as the new current position.
func (self *PositionState) Commit(target *Target) {
	self.Current.X = target.X
	self.Current.Y = target.Y
	self.Current.Z = target.Z
	self.Current.E = target.E
	self.Current.F = target.F
}
