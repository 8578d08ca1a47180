package project

import "fmt"

type CodeClass byte

const (
	CLASS_NONE CodeClass = 0
	CLASS_G    CodeClass = 'G'
	CLASS_M    CodeClass = 'M'
)

type Axis int

const (
	X_AXIS Axis = iota
	Y_AXIS
	Z_AXIS
	E_AXIS
	NUM_AXES = 4
)

var axisNames = [NUM_AXES]byte{'X', 'Y', 'Z', 'E'}

func (a Axis) String() string {
	if a < X_AXIS || a > E_AXIS {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return string(axisNames[a])
}

// Command is one parsed protocol line. Axis values are nanometers, already scaled for
// the active units by the parser; a value without its Seen flag means "unchanged".
type Command struct {
	Class CodeClass
	Code  int

	Axes     [NUM_AXES]int32
	SeenAxes [NUM_AXES]bool

	F     uint32
	SeenF bool

	P     int
	SeenP bool
	S     float64
	SeenS bool
	T     int
	SeenT bool
}

func (self *Command) Seen(axis Axis) bool {
	return self.SeenAxes[axis]
}

func (self *Command) AnyAxisSeen(axes ...Axis) bool {
	for _, a := range axes {
		if self.SeenAxes[a] {
			return true
		}
	}
	return false
}

func (self *Command) String() string {
	s := fmt.Sprintf("%c%d", self.Class, self.Code)
	for a := X_AXIS; a <= E_AXIS; a++ {
		if self.SeenAxes[a] {
			s += fmt.Sprintf(" %c%d", axisNames[a], self.Axes[a])
		}
	}
	if self.SeenF {
		s += fmt.Sprintf(" F%d", self.F)
	}
	if self.SeenP {
		s += fmt.Sprintf(" P%d", self.P)
	}
	if self.SeenS {
		s += fmt.Sprintf(" S%g", self.S)
	}
	if self.SeenT {
		s += fmt.Sprintf(" T%d", self.T)
	}
	return s
}
