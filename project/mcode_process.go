package project

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"gproc/common/logger"
)

const MIN_OVERRIDE_FACTOR = 0.001

func (self *GCodeProcess) registerMCodes() {
	self.Register_command(CLASS_M, 0, self.program_end, false)
	self.Register_command(CLASS_M, 2, self.program_end, false)
	self.Register_command(CLASS_M, 112, self.emergency_stop, false)
	self.Register_command(CLASS_M, 3, self.extruder_on, false)
	self.Register_command(CLASS_M, 101, self.extruder_on, false)
	self.Register_command(CLASS_M, 5, self.extruder_off, false)
	self.Register_command(CLASS_M, 103, self.extruder_off, false)
	self.Register_command(CLASS_M, 6, self.cmd_M6, false)
	self.Register_command(CLASS_M, 7, self.fan_on, false)
	self.Register_command(CLASS_M, 106, self.fan_on, false)
	self.Register_command(CLASS_M, 9, self.fan_off, false)
	self.Register_command(CLASS_M, 107, self.fan_off, false)
	self.Register_command(CLASS_M, 82, self.cmd_M82, false)
	self.Register_command(CLASS_M, 83, self.cmd_M83, false)
	self.Register_command(CLASS_M, 84, self.cmd_M84, false)
	self.Register_command(CLASS_M, 104, self.set_temperature, false)
	self.Register_command(CLASS_M, 109, self.set_temperature, false)
	self.Register_command(CLASS_M, 140, self.set_temperature, false)
	self.Register_command(CLASS_M, 190, self.set_temperature, false)
	self.Register_command(CLASS_M, 105, self.cmd_M105, false)
	self.Register_command(CLASS_M, 110, self.cmd_M110, false)
	self.Register_command(CLASS_M, 111, self.cmd_M111, false)
	self.Register_command(CLASS_M, 113, self.cmd_M113, false)
	self.Register_command(CLASS_M, 114, self.cmd_M114, false)
	self.Register_command(CLASS_M, 115, self.cmd_M115, false)
	self.Register_command(CLASS_M, 116, self.cmd_M116, false)
	for _, code := range []int{130, 131, 132, 133} {
		self.Register_command(CLASS_M, code, self.set_pid_factor, false)
	}
	self.Register_command(CLASS_M, 134, self.cmd_M134, false)
	self.Register_command(CLASS_M, 135, self.cmd_M135, false)
	self.Register_command(CLASS_M, 136, self.cmd_M136, true)
	self.Register_command(CLASS_M, 191, self.cmd_M191, false)
	self.Register_command(CLASS_M, 200, self.cmd_M200, false)
	self.Register_command(CLASS_M, 207, self.calibrate_z, false)
	self.Register_command(CLASS_M, 220, self.set_override, false)
	self.Register_command(CLASS_M, 221, self.set_override, false)
	self.Register_command(CLASS_M, 240, self.cmd_M240, true)
	self.Register_command(CLASS_M, 241, self.cmd_M241, true)
	self.Register_command(CLASS_M, 250, self.cmd_M250, true)
	self.Register_command(CLASS_M, 253, self.cmd_M253, true)
	self.Register_command(CLASS_M, 254, self.cmd_M254, true)
}

// program_end lets queued motion finish before the stop sequence (M0, M2).
func (self *GCodeProcess) program_end(cmd *Command, target *Target) error {
	self.wait_for_motion()
	return self.emergency_stop(cmd, target)
}

// emergency_stop aborts motion, cuts drivers and power and parks the calling
// goroutine. Only a restart recovers.
func (self *GCodeProcess) emergency_stop(cmd *Command, target *Target) error {
	logger.Warnf("M%d: stopping machine", cmd.Code)
	self.trajectory.Abort()
	self.machine.Disable_drivers()
	self.machine.Power_off()
	self.halt()
	return nil
}

func (self *GCodeProcess) extruder_on(cmd *Command, target *Target) error {
	return self.set_pwm(self.channels.PwmExtruder, self.opts.LaserOnDuty)
}

func (self *GCodeProcess) extruder_off(cmd *Command, target *Target) error {
	return self.set_pwm(self.channels.PwmExtruder, 0)
}

func (self *GCodeProcess) set_pwm(tag ChannelTag, duty float64) error {
	if tag == nil {
		return nil
	}
	return self.heaters.Set_pwm_output(tag, duty)
}

func (self *GCodeProcess) cmd_M6(cmd *Command, target *Target) error {
	self.tool = self.nextTool
	return nil
}

// Fan duty is S/255, full on without S.
func (self *GCodeProcess) fan_on(cmd *Command, target *Target) error {
	self.enforce_order()
	duty := 1.0
	if cmd.SeenS {
		duty = clamp01(cmd.S / 255.)
	}
	return self.set_pwm(self.channels.PwmFan, duty)
}

func (self *GCodeProcess) fan_off(cmd *Command, target *Target) error {
	self.enforce_order()
	return self.set_pwm(self.channels.PwmFan, 0)
}

func (self *GCodeProcess) cmd_M82(cmd *Command, target *Target) error {
	if old := self.axes.Set_e_axis_mode(false); old && self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("M82: switching to absolute extruder coordinates")
	}
	return nil
}

func (self *GCodeProcess) cmd_M83(cmd *Command, target *Target) error {
	if old := self.axes.Set_e_axis_mode(true); !old && self.debugFlags&DEBUG_GCODE_PROCESS != 0 {
		logger.Debugf("M83: switching to relative extruder coordinates")
	}
	return nil
}

func (self *GCodeProcess) cmd_M84(cmd *Command, target *Target) error {
	self.machine.Disable_drivers()
	return nil
}

// set_temperature serves M104, M109, M140 and M190. P1 on M104/M109 addresses
// the bed. M109 and M190 return once the heater reports its target reached.
func (self *GCodeProcess) set_temperature(cmd *Command, target *Target) error {
	isBed := cmd.Code == 140 || cmd.Code == 190 || (cmd.SeenP && cmd.P == 1)
	heater := self.channels.HeaterExtruder
	if isBed {
		heater = self.channels.HeaterBed
	}
	if heater == nil {
		return errors.Wrapf(ErrNoChannel, "M%d: no heater", cmd.Code)
	}
	if cmd.SeenS {
		if err := self.heaters.Set_setpoint(heater, cmd.S); err != nil {
			return err
		}
		if cmd.S > 0 {
			self.machine.Power_on()
			if err := self.heaters.Enable(heater, true); err != nil {
				return err
			}
		} else if err := self.heaters.Enable(heater, false); err != nil {
			return err
		}
	}
	if cmd.Code == 109 || cmd.Code == 190 {
		if isBed {
			self.signals.Set_bed_pending(heater)
		} else {
			self.signals.Set_extruder_pending(heater)
		}
		self.signals.Wait()
	}
	return nil
}

func (self *GCodeProcess) cmd_M105(cmd *Command, target *Target) error {
	self.enforce_order()
	if cmd.SeenP {
		if cmd.P != 0 && cmd.P != 1 {
			return nil
		}
		celsius, err := self.celsius(cmd.P)
		if err != nil {
			return err
		}
		self.Respond_raw(fmt.Sprintf("T:%.1f", celsius))
		return nil
	}
	celsius, err := self.celsius(0)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("T:%.1f", celsius)
	if self.channels.HeaterBed != nil {
		if bed, err := self.celsius(1); err == nil {
			msg += fmt.Sprintf(" B:%.1f", bed)
		}
	}
	self.Respond_raw(msg)
	return nil
}

// celsius reads the sensor for index 0 (extruder) or 1 (bed), falling back to
// the heater channel when no sensor is configured.
func (self *GCodeProcess) celsius(index int) (float64, error) {
	tag := self.channels.Temp(index)
	if tag == nil {
		tag = self.channels.Heater(index)
	}
	if tag == nil {
		return 0, errors.Wrapf(ErrNoChannel, "temperature %d", index)
	}
	return self.heaters.Get_celsius(tag)
}

func (self *GCodeProcess) cmd_M110(cmd *Command, target *Target) error {
	return nil
}

func (self *GCodeProcess) cmd_M111(cmd *Command, target *Target) error {
	if cmd.SeenS {
		self.debugFlags = int(cmd.S)
	}
	self.Respond_raw(fmt.Sprintf("New debug_flags setting: 0x%04x", self.debugFlags))
	return nil
}

func (self *GCodeProcess) cmd_M113(cmd *Command, target *Target) error {
	if !cmd.SeenS {
		return nil
	}
	if self.channels.PwmExtruder == nil {
		return errors.Wrap(ErrNoChannel, "M113: no extruder pwm")
	}
	return self.heaters.Set_pwm_output(self.channels.PwmExtruder, clamp01(cmd.S))
}

func (self *GCodeProcess) cmd_M114(cmd *Command, target *Target) error {
	self.enforce_order()
	self.Respond_raw(self.format_current())
	return nil
}

func (self *GCodeProcess) format_current() string {
	c := &self.pos.Current
	return fmt.Sprintf("current: X=%.6f, Y=%.6f, Z=%.6f, E=%.6f, F=%d",
		POS2MM(c.X), POS2MM(c.Y), POS2MM(c.Z), POS2MM(c.E), c.F)
}

func (self *GCodeProcess) cmd_M115(cmd *Command, target *Target) error {
	extruders, sensors, heaters := self.channels.Counts()
	msg, err := self.firmware.Render(extruders, sensors, heaters)
	if err != nil {
		return errors.Wrap(err, "render firmware identity")
	}
	self.Respond_raw(msg)
	return nil
}

// M116 waits for motion and then for every heater with a positive setpoint.
func (self *GCodeProcess) cmd_M116(cmd *Command, target *Target) error {
	self.wait_for_motion()
	if heater := self.channels.HeaterExtruder; heater != nil {
		if sp, err := self.heaters.Get_setpoint(heater); err == nil && sp > 0 {
			self.signals.Set_extruder_pending(heater)
		}
	}
	if heater := self.channels.HeaterBed; heater != nil {
		if sp, err := self.heaters.Get_setpoint(heater); err == nil && sp > 0 {
			self.signals.Set_bed_pending(heater)
		}
	}
	self.signals.Wait()
	return nil
}

func (self *GCodeProcess) pid_heater(cmd *Command) (ChannelTag, error) {
	index := 0
	if cmd.SeenP {
		index = cmd.P
		if index != 0 && index != 1 {
			return nil, errors.Wrapf(ErrNoChannel, "M%d: heater P%d", cmd.Code, cmd.P)
		}
	}
	heater := self.channels.Heater(index)
	if heater == nil {
		return nil, errors.Wrapf(ErrNoChannel, "M%d: heater P%d", cmd.Code, index)
	}
	return heater, nil
}

var pidFactorNames = map[int]string{130: "P", 131: "I", 132: "D", 133: "I_limit"}

// set_pid_factor serves M130..M133. Without S the present value is reported.
func (self *GCodeProcess) set_pid_factor(cmd *Command, target *Target) error {
	heater, err := self.pid_heater(cmd)
	if err != nil {
		return err
	}
	pid, err := self.heaters.Get_pid(heater)
	if err != nil {
		return err
	}
	var field *float64
	switch cmd.Code {
	case 130:
		field = &pid.P
	case 131:
		field = &pid.I
	case 132:
		field = &pid.D
	default:
		field = &pid.ILimit
	}
	if !cmd.SeenS {
		self.Respond_raw(fmt.Sprintf("%s:%.3f", pidFactorNames[cmd.Code], *field))
		return nil
	}
	*field = cmd.S
	return self.heaters.Set_pid(heater, pid)
}

func (self *GCodeProcess) cmd_M134(cmd *Command, target *Target) error {
	return self.heaters.Save_settings()
}

func (self *GCodeProcess) cmd_M135(cmd *Command, target *Target) error {
	if !cmd.SeenS {
		return nil
	}
	heater, err := self.pid_heater(cmd)
	if err != nil {
		return err
	}
	if err = self.heaters.Set_raw_output(heater, clamp01(cmd.S)); err != nil {
		return err
	}
	self.machine.Power_on()
	return nil
}

func (self *GCodeProcess) cmd_M136(cmd *Command, target *Target) error {
	heater, err := self.pid_heater(cmd)
	if err != nil {
		return err
	}
	pid, err := self.heaters.Get_pid(heater)
	if err != nil {
		return err
	}
	self.Respond_raw(fmt.Sprintf("P:%.3f I:%.3f D:%.3f Ilim:%.3f FF_factor:%.3f FF_offset:%.3f",
		pid.P, pid.I, pid.D, pid.ILimit, pid.FFFactor, pid.FFOffset))
	return nil
}

func (self *GCodeProcess) cmd_M191(cmd *Command, target *Target) error {
	self.enforce_order()
	self.machine.Disable_drivers()
	self.machine.Power_off()
	return nil
}

func (self *GCodeProcess) cmd_M200(cmd *Command, target *Target) error {
	var parts []string
	for _, d := range homingAxes {
		name := strings.ToLower(d.axis.String())
		if self.switches.Has_min(d.axis) {
			parts = append(parts, fmt.Sprintf("%s_min:%d", name, self.switches.Min_state(d.axis)))
		}
		if self.switches.Has_max(d.axis) {
			parts = append(parts, fmt.Sprintf("%s_max:%d", name, self.switches.Max_state(d.axis)))
		}
	}
	if len(parts) == 0 {
		self.Respond_raw("no endstops defined")
		return nil
	}
	self.Respond_raw(strings.Join(parts, " "))
	return nil
}

// set_override serves M220 (speed) and M221 (extruder flow); the factor is S/1000.
func (self *GCodeProcess) set_override(cmd *Command, target *Target) error {
	if !cmd.SeenS {
		return nil
	}
	factor := 0.001 * cmd.S
	if factor < MIN_OVERRIDE_FACTOR {
		factor = MIN_OVERRIDE_FACTOR
	}
	var old float64
	kind := "speed"
	if cmd.Code == 220 {
		old = self.trajectory.SetSpeedOverride(factor)
	} else {
		kind = "extruder"
		old = self.trajectory.SetExtruderOverride(factor)
	}
	logger.Infof("M%d: set %s override factor to %.3f, old value was %.3f", cmd.Code, kind, factor, old)
	return nil
}

func (self *GCodeProcess) cmd_M240(cmd *Command, target *Target) error {
	self.debugFlags &^= DEBUG_ECHO
	self.Respond_raw("Echo off")
	return nil
}

func (self *GCodeProcess) cmd_M241(cmd *Command, target *Target) error {
	self.debugFlags |= DEBUG_ECHO
	self.Respond_raw("Echo on")
	return nil
}

func (self *GCodeProcess) cmd_M250(cmd *Command, target *Target) error {
	h := &self.pos.Home
	self.Respond_raw(self.format_current())
	self.Respond_raw(fmt.Sprintf("origin: X=%.6f, Y=%.6f, Z=%.6f, E=%.6f",
		POS2MM(h.X), POS2MM(h.Y), POS2MM(h.Z), POS2MM(h.E)))
	self.Respond_raw(self.trajectory.DumpPosition())
	return nil
}

// M253 and M254 (memory read/write) are accepted and ignored.
func (self *GCodeProcess) cmd_M253(cmd *Command, target *Target) error {
	return nil
}

func (self *GCodeProcess) cmd_M254(cmd *Command, target *Target) error {
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
