package project

import "gproc/common/config"

// Hardware axis numbers used by the trajectory engine registers.
const (
	HW_AXIS_X = 1
	HW_AXIS_Y = 2
	HW_AXIS_Z = 3
	HW_AXIS_E = 4
)

// Segment is one motion request in machine frame, meters. Feed is in the
// protocol's feed units; the engine limits it per axis.
type Segment struct {
	From [NUM_AXES]float64
	To   [NUM_AXES]float64
	Feed uint32
}

func (self Segment) Delta(axis Axis) float64 {
	return self.To[axis] - self.From[axis]
}

// ITrajectory is the real-time motion engine. Enqueue returns once the request is
// queued, not once it has executed.
type ITrajectory interface {
	Enqueue(seg Segment) error
	Idle() bool
	Abort()
	SetPosition(hwAxis int, pos int32)
	AdjustOrigin(hwAxis int, pos int32)
	SetSpeedOverride(factor float64) float64
	SetExtruderOverride(factor float64) float64
	DumpState() string
	DumpPosition() string
}

// ChannelTag is an opaque handle for a named heater, sensor or PWM channel.
type ChannelTag interface {
	Tag_name() string
}

type IChannelLookup interface {
	Lookup_heater(name string) ChannelTag
	Lookup_temp(name string) ChannelTag
	Lookup_pwm(name string) ChannelTag
}

// IHeaters is the heater subsystem; only setpoints, readings and PID
// coefficients cross this boundary.
type IHeaters interface {
	IChannelLookup
	Set_setpoint(heater ChannelTag, celsius float64) error
	Get_setpoint(heater ChannelTag) (float64, error)
	Enable(heater ChannelTag, on bool) error
	Temp_reached(heater ChannelTag) bool
	Get_celsius(channel ChannelTag) (float64, error)
	Get_pid(heater ChannelTag) (config.PIDParams, error)
	Set_pid(heater ChannelTag, pid config.PIDParams) error
	Save_settings() error
	Set_raw_output(heater ChannelTag, duty float64) error
	Set_pwm_output(pwm ChannelTag, duty float64) error
}

// IHomer drives one axis to a switch; pos is machine frame and is updated in place.
type IHomer interface {
	Home_to_min(axis Axis, pos *int32, feed uint32) error
	Home_to_max(axis Axis, pos *int32, feed uint32) error
}

type ILimitSwitches interface {
	Has_min(axis Axis) bool
	Has_max(axis Axis) bool
	Min_state(axis Axis) int
	Max_state(axis Axis) int
}

type IMachine interface {
	Power_on()
	Power_off()
	Disable_drivers()
}

// IAxisConfig is the external machine configuration. Soft limits are in mm,
// switch positions in meters.
type IAxisConfig interface {
	Max_soft_limit(axis Axis) (float64, bool)
	Min_soft_limit(axis Axis) (float64, bool)
	Max_switch_pos(axis Axis) (float64, bool)
	Min_switch_pos(axis Axis) (float64, bool)
	Set_cal_pos(axis Axis, pos float64) error
	E_axis_is_always_relative() bool
	Set_e_axis_mode(relative bool) bool
}
