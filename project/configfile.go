package project

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"gproc/common/config"
	"gproc/common/logger"
)

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	File       string `yaml:"file" toml:"file"`
	Color      bool   `yaml:"color" toml:"color"`
	MaxSize    int    `yaml:"max_size" toml:"max_size"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAge     int    `yaml:"max_age" toml:"max_age"`
}

type SerialConfig struct {
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
}

type GCodeConfig struct {
	DefaultFeed    uint32       `yaml:"default_feed" toml:"default_feed"`
	PollIntervalMs int          `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	EnforceOrder   bool         `yaml:"enforce_order" toml:"enforce_order"`
	Diagnostics    bool         `yaml:"diagnostics" toml:"diagnostics"`
	EAxisRelative  bool         `yaml:"e_axis_relative" toml:"e_axis_relative"`
	LaserOnDuty    float64      `yaml:"laser_on_duty" toml:"laser_on_duty"`
	Firmware       FirmwareInfo `yaml:"firmware" toml:"firmware"`
}

// AxisLimits holds one axis section. All lengths are millimeters; absent
// values mean "not configured".
type AxisLimits struct {
	MinSoftLimit *float64 `yaml:"min_soft_limit" toml:"min_soft_limit"`
	MaxSoftLimit *float64 `yaml:"max_soft_limit" toml:"max_soft_limit"`
	MinSwitchPos *float64 `yaml:"min_switch_pos" toml:"min_switch_pos"`
	MaxSwitchPos *float64 `yaml:"max_switch_pos" toml:"max_switch_pos"`
	HasMinSwitch bool     `yaml:"has_min_switch" toml:"has_min_switch"`
	HasMaxSwitch bool     `yaml:"has_max_switch" toml:"has_max_switch"`
	// Travel bounds the simulated homing search when no switch is fitted.
	Travel float64 `yaml:"travel" toml:"travel"`
}

// HeaterConfig describes one simulated heater loop and its sensor.
type HeaterConfig struct {
	Name      string           `yaml:"name" toml:"name"`
	Sensor    string           `yaml:"sensor" toml:"sensor"`
	Ambient   float64          `yaml:"ambient" toml:"ambient"`
	MaxTemp   float64          `yaml:"max_temp" toml:"max_temp"`
	HeatRate  float64          `yaml:"heat_rate" toml:"heat_rate"`
	CoolRate  float64          `yaml:"cool_rate" toml:"cool_rate"`
	Tolerance float64          `yaml:"tolerance" toml:"tolerance"`
	PID       config.PIDParams `yaml:"pid" toml:"pid"`
}

// MachineConfig is the machine description loaded at startup. It also serves
// the axis configuration queries of the gcode process.
type MachineConfig struct {
	Log      LogConfig              `yaml:"log" toml:"log"`
	Serial   SerialConfig           `yaml:"serial" toml:"serial"`
	GCode    GCodeConfig            `yaml:"gcode" toml:"gcode"`
	Axes     map[string]*AxisLimits `yaml:"axes" toml:"axes"`
	Channels ChannelNames           `yaml:"channels" toml:"channels"`
	Heaters  []HeaterConfig         `yaml:"heaters" toml:"heaters"`
	Pwm      []string               `yaml:"pwm" toml:"pwm"`
	ParaFile string                 `yaml:"para_file" toml:"para_file"`

	mu   sync.Mutex
	para *config.ParaStore
}

func DefaultMachineConfig() *MachineConfig {
	return &MachineConfig{
		Log: LogConfig{Level: "info", MaxSize: 10, MaxBackups: 3, MaxAge: 7},
		Serial: SerialConfig{
			Baud: 115200,
		},
		GCode: GCodeConfig{
			DefaultFeed:    DEFAULT_FEED,
			PollIntervalMs: int(DEFAULT_POLL_INTERVAL / time.Millisecond),
			LaserOnDuty:    1.0,
			Firmware:       DefaultFirmwareInfo(),
		},
		Axes:     map[string]*AxisLimits{},
		Channels: DefaultChannelNames(),
		Heaters: []HeaterConfig{
			{Name: "heater_extruder", Sensor: "temp_extruder", Ambient: 25, MaxTemp: 280, HeatRate: 8, CoolRate: 0.05, Tolerance: 2,
				PID: config.PIDParams{P: 22.2, I: 1.08, D: 114, ILimit: 1.0}},
			{Name: "heater_bed", Sensor: "temp_bed", Ambient: 25, MaxTemp: 120, HeatRate: 2, CoolRate: 0.02, Tolerance: 1,
				PID: config.PIDParams{P: 70, I: 1.5, D: 800, ILimit: 1.0}},
		},
		Pwm: []string{"pwm_laser_power", "pwm_fan"},
	}
}

// LoadMachineConfig reads a YAML or TOML (by extension) machine config, applies
// defaults and persisted tunables, and validates the result.
func LoadMachineConfig(path string) (*MachineConfig, error) {
	self := DefaultMachineConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err = self.decode(path, data); err != nil {
			return nil, err
		}
	}
	self.applyDefaults()
	if err := self.Validate(); err != nil {
		return nil, err
	}
	self.para = config.NewParaStore(self.ParaFile)
	self.applyPara()
	return self, nil
}

func (self *MachineConfig) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), self); err != nil {
			return errors.Wrapf(err, "parse toml %s", path)
		}
	default:
		if err := yaml.Unmarshal(data, self); err != nil {
			return errors.Wrapf(err, "parse yaml %s", path)
		}
	}
	return nil
}

func (self *MachineConfig) applyDefaults() {
	if self.GCode.DefaultFeed == 0 {
		self.GCode.DefaultFeed = DEFAULT_FEED
	}
	if self.GCode.PollIntervalMs <= 0 {
		self.GCode.PollIntervalMs = int(DEFAULT_POLL_INTERVAL / time.Millisecond)
	}
	if self.GCode.Firmware.Template == "" {
		self.GCode.Firmware.Template = DEFAULT_FIRMWARE_TEMPLATE
	}
	if self.Axes == nil {
		self.Axes = map[string]*AxisLimits{}
	}
	for i := range self.Heaters {
		h := &self.Heaters[i]
		if h.Tolerance <= 0 {
			h.Tolerance = 1
		}
		if h.Ambient == 0 {
			h.Ambient = 25
		}
	}
}

func (self *MachineConfig) Validate() error {
	var err error
	for name, limits := range self.Axes {
		if _, ok := axisByName(name); !ok {
			err = multierr.Append(err, errors.Wrapf(ErrConfig, "unknown axis %q", name))
			continue
		}
		if limits.MinSoftLimit != nil && limits.MaxSoftLimit != nil && *limits.MinSoftLimit >= *limits.MaxSoftLimit {
			err = multierr.Append(err, errors.Wrapf(ErrConfig, "axis %s: min_soft_limit >= max_soft_limit", name))
		}
	}
	seen := map[string]bool{}
	for _, h := range self.Heaters {
		if h.Name == "" {
			err = multierr.Append(err, errors.Wrap(ErrConfig, "heater without name"))
			continue
		}
		if seen[h.Name] {
			err = multierr.Append(err, errors.Wrapf(ErrConfig, "duplicate heater %q", h.Name))
		}
		seen[h.Name] = true
		if h.MaxTemp <= h.Ambient {
			err = multierr.Append(err, errors.Wrapf(ErrConfig, "heater %s: max_temp must exceed ambient", h.Name))
		}
	}
	if self.GCode.LaserOnDuty < 0 || self.GCode.LaserOnDuty > 1 {
		err = multierr.Append(err, errors.Wrap(ErrConfig, "gcode.laser_on_duty must be within 0..1"))
	}
	return err
}

// applyPara overrides configured values with persisted tunables.
func (self *MachineConfig) applyPara() {
	for i := range self.Heaters {
		if pid, ok := self.para.PID(self.Heaters[i].Name); ok {
			self.Heaters[i].PID = pid
		}
	}
	for name, limits := range self.Axes {
		pos, ok := self.para.Calibration(name)
		if !ok {
			continue
		}
		mm := pos * 1000
		if limits.MaxSwitchPos != nil {
			limits.MaxSwitchPos = &mm
		} else if limits.MinSwitchPos != nil {
			limits.MinSwitchPos = &mm
		}
		logger.Infof("axis %s: calibrated switch position %.6f mm", name, mm)
	}
}

func (self *MachineConfig) Para() *config.ParaStore {
	return self.para
}

func (self *MachineConfig) Options() Options {
	return Options{
		DefaultFeed:  self.GCode.DefaultFeed,
		PollInterval: time.Duration(self.GCode.PollIntervalMs) * time.Millisecond,
		EnforceOrder: self.GCode.EnforceOrder,
		Diagnostics:  self.GCode.Diagnostics,
		LaserOnDuty:  self.GCode.LaserOnDuty,
		Firmware:     self.GCode.Firmware,
		Channels:     self.Channels,
	}
}

func axisByName(name string) (Axis, bool) {
	for axis := X_AXIS; axis <= E_AXIS; axis++ {
		if strings.EqualFold(axis.String(), name) {
			return axis, true
		}
	}
	return 0, false
}

func (self *MachineConfig) Axis_limits(axis Axis) *AxisLimits {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.limits(axis)
}

func (self *MachineConfig) limits(axis Axis) *AxisLimits {
	if limits, ok := self.Axes[strings.ToLower(axis.String())]; ok {
		return limits
	}
	return &AxisLimits{}
}

func optional(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (self *MachineConfig) Max_soft_limit(axis Axis) (float64, bool) {
	return optional(self.Axis_limits(axis).MaxSoftLimit)
}

func (self *MachineConfig) Min_soft_limit(axis Axis) (float64, bool) {
	return optional(self.Axis_limits(axis).MinSoftLimit)
}

// Max_switch_pos returns the switch position in meters.
func (self *MachineConfig) Max_switch_pos(axis Axis) (float64, bool) {
	mm, ok := optional(self.Axis_limits(axis).MaxSwitchPos)
	return mm / 1000, ok
}

func (self *MachineConfig) Min_switch_pos(axis Axis) (float64, bool) {
	mm, ok := optional(self.Axis_limits(axis).MinSwitchPos)
	return mm / 1000, ok
}

// Set_cal_pos stores a new reference switch position (meters) and persists it.
func (self *MachineConfig) Set_cal_pos(axis Axis, pos float64) error {
	self.mu.Lock()
	limits := self.limits(axis)
	mm := pos * 1000
	if limits.MaxSwitchPos != nil || limits.MinSwitchPos == nil {
		limits.MaxSwitchPos = &mm
	} else {
		limits.MinSwitchPos = &mm
	}
	self.Axes[strings.ToLower(axis.String())] = limits
	self.mu.Unlock()
	if self.para == nil {
		return nil
	}
	return self.para.SaveCalibration(strings.ToLower(axis.String()), pos)
}

func (self *MachineConfig) E_axis_is_always_relative() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.GCode.EAxisRelative
}

func (self *MachineConfig) Set_e_axis_mode(relative bool) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	old := self.GCode.EAxisRelative
	self.GCode.EAxisRelative = relative
	return old
}
