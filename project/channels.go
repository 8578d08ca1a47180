package project

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gproc/common/logger"
)

// ChannelNames are the names looked up once at startup.
type ChannelNames struct {
	HeaterExtruder string `yaml:"heater_extruder" toml:"heater_extruder"`
	HeaterBed      string `yaml:"heater_bed" toml:"heater_bed"`
	TempExtruder   string `yaml:"temp_extruder" toml:"temp_extruder"`
	TempBed        string `yaml:"temp_bed" toml:"temp_bed"`
	PwmExtruder    string `yaml:"pwm_extruder" toml:"pwm_extruder"`
	PwmFan         string `yaml:"pwm_fan" toml:"pwm_fan"`
}

func DefaultChannelNames() ChannelNames {
	return ChannelNames{
		HeaterExtruder: "heater_extruder",
		HeaterBed:      "heater_bed",
		TempExtruder:   "temp_extruder",
		TempBed:        "temp_bed",
		PwmExtruder:    "pwm_laser_power",
		PwmFan:         "pwm_fan",
	}
}

// Channels is the resolved channel directory. It is read-only after
// ResolveChannels returns.
type Channels struct {
	HeaterExtruder ChannelTag
	HeaterBed      ChannelTag
	TempExtruder   ChannelTag
	TempBed        ChannelTag
	PwmExtruder    ChannelTag
	PwmFan         ChannelTag
}

// ResolveChannels looks up every named channel. The directory is unusable when
// the extruder has neither a heater with a sensor nor a PWM output.
func ResolveChannels(lookup IChannelLookup, names ChannelNames) (*Channels, error) {
	self := &Channels{}
	var missing error
	resolve := func(kind string, name string, fn func(string) ChannelTag) ChannelTag {
		if name == "" {
			return nil
		}
		tag := fn(name)
		if tag == nil {
			logger.Warnf("%s channel %q not found", kind, name)
			missing = multierr.Append(missing, errors.Wrapf(ErrNoChannel, "%s %q", kind, name))
		}
		return tag
	}
	self.HeaterExtruder = resolve("heater", names.HeaterExtruder, lookup.Lookup_heater)
	self.HeaterBed = resolve("heater", names.HeaterBed, lookup.Lookup_heater)
	self.TempExtruder = resolve("temp", names.TempExtruder, lookup.Lookup_temp)
	self.TempBed = resolve("temp", names.TempBed, lookup.Lookup_temp)
	self.PwmExtruder = resolve("pwm", names.PwmExtruder, lookup.Lookup_pwm)
	self.PwmFan = resolve("pwm", names.PwmFan, lookup.Lookup_pwm)

	if (self.HeaterExtruder == nil || self.TempExtruder == nil) && self.PwmExtruder == nil {
		return nil, errors.Wrap(multierr.Append(missing, ErrConfig), "no usable extruder heater or pwm channel")
	}
	return self, nil
}

// Heater selects a heater by the P parameter convention: 1 is the bed, anything
// else the extruder.
func (self *Channels) Heater(index int) ChannelTag {
	if index == 1 {
		return self.HeaterBed
	}
	return self.HeaterExtruder
}

func (self *Channels) Temp(index int) ChannelTag {
	if index == 1 {
		return self.TempBed
	}
	return self.TempExtruder
}

// Counts reports extruders, temperature sensors and heaters for the firmware
// identity string.
func (self *Channels) Counts() (extruders, sensors, heaters int) {
	if self.HeaterExtruder != nil || self.PwmExtruder != nil {
		extruders = 1
	}
	for _, tag := range []ChannelTag{self.TempExtruder, self.TempBed} {
		if tag != nil {
			sensors++
		}
	}
	for _, tag := range []ChannelTag{self.HeaterExtruder, self.HeaterBed} {
		if tag != nil {
			heaters++
		}
	}
	return extruders, sensors, heaters
}
