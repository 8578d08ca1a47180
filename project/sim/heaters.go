package sim

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gproc/common/config"
	"gproc/common/logger"
	"gproc/project"
)

type channelKind int

const (
	KIND_HEATER channelKind = iota
	KIND_TEMP
	KIND_PWM
)

type channel struct {
	name   string
	kind   channelKind
	heater *heater
	duty   float64
}

func (self *channel) Tag_name() string {
	return self.name
}

type heater struct {
	cfg      project.HeaterConfig
	setpoint float64
	enabled  bool
	raw      float64
	rawMode  bool
	temp     float64
	updated  time.Time
}

// step advances the first order temperature model to now.
func (self *heater) step(now time.Time) {
	dt := now.Sub(self.updated).Seconds()
	self.updated = now
	if dt <= 0 {
		return
	}
	goal := self.cfg.Ambient
	switch {
	case self.rawMode:
		goal = self.cfg.Ambient + self.raw*(self.cfg.MaxTemp-self.cfg.Ambient)
	case self.enabled && self.setpoint > self.cfg.Ambient:
		goal = math.Min(self.setpoint, self.cfg.MaxTemp)
	}
	if self.temp < goal {
		self.temp = math.Min(goal, self.temp+self.cfg.HeatRate*dt)
	} else {
		self.temp -= (self.temp - goal) * math.Min(1, self.cfg.CoolRate*dt)
	}
}

func (self *heater) reached() bool {
	if !self.enabled || self.setpoint <= self.cfg.Ambient {
		return true
	}
	return math.Abs(self.temp-self.setpoint) <= self.cfg.Tolerance
}

// Heaters simulates the heater subsystem: named heaters with sensors, plain PWM
// outputs and PID coefficient storage.
type Heaters struct {
	mu       sync.Mutex
	now      func() time.Time
	channels map[string]*channel
	heaters  []*channel
	para     *config.ParaStore
}

func NewHeaters(cfgs []project.HeaterConfig, pwm []string, para *config.ParaStore, now func() time.Time) *Heaters {
	if now == nil {
		now = time.Now
	}
	self := &Heaters{now: now, channels: map[string]*channel{}, para: para}
	start := now()
	for _, cfg := range cfgs {
		h := &heater{cfg: cfg, temp: cfg.Ambient, updated: start}
		tag := &channel{name: cfg.Name, kind: KIND_HEATER, heater: h}
		self.channels[cfg.Name] = tag
		self.heaters = append(self.heaters, tag)
		if cfg.Sensor != "" {
			self.channels[cfg.Sensor] = &channel{name: cfg.Sensor, kind: KIND_TEMP, heater: h}
		}
	}
	for _, name := range pwm {
		self.channels[name] = &channel{name: name, kind: KIND_PWM}
	}
	return self
}

func (self *Heaters) lookup(name string, kind channelKind) project.ChannelTag {
	self.mu.Lock()
	defer self.mu.Unlock()
	if tag, ok := self.channels[name]; ok && tag.kind == kind {
		return tag
	}
	return nil
}

func (self *Heaters) Lookup_heater(name string) project.ChannelTag {
	return self.lookup(name, KIND_HEATER)
}

func (self *Heaters) Lookup_temp(name string) project.ChannelTag {
	return self.lookup(name, KIND_TEMP)
}

func (self *Heaters) Lookup_pwm(name string) project.ChannelTag {
	return self.lookup(name, KIND_PWM)
}

func (self *Heaters) resolve(tag project.ChannelTag, kinds ...channelKind) (*channel, error) {
	ch, ok := tag.(*channel)
	if !ok || ch == nil {
		return nil, errors.Wrapf(project.ErrNoChannel, "invalid channel %v", tag)
	}
	for _, kind := range kinds {
		if ch.kind == kind {
			if ch.heater != nil {
				ch.heater.step(self.now())
			}
			return ch, nil
		}
	}
	return nil, errors.Wrapf(project.ErrNoChannel, "channel %s has wrong kind", ch.name)
}

func (self *Heaters) Set_setpoint(tag project.ChannelTag, celsius float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return err
	}
	if celsius > ch.heater.cfg.MaxTemp {
		return errors.Errorf("%s: setpoint %.1f above max_temp %.1f", ch.name, celsius, ch.heater.cfg.MaxTemp)
	}
	ch.heater.setpoint = celsius
	ch.heater.rawMode = false
	logger.Infof("%s: setpoint %.1f", ch.name, celsius)
	return nil
}

func (self *Heaters) Get_setpoint(tag project.ChannelTag) (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return 0, err
	}
	return ch.heater.setpoint, nil
}

func (self *Heaters) Enable(tag project.ChannelTag, on bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return err
	}
	ch.heater.enabled = on
	return nil
}

func (self *Heaters) Temp_reached(tag project.ChannelTag) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return true
	}
	return ch.heater.reached()
}

func (self *Heaters) Get_celsius(tag project.ChannelTag) (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER, KIND_TEMP)
	if err != nil {
		return 0, err
	}
	return ch.heater.temp, nil
}

func (self *Heaters) Get_pid(tag project.ChannelTag) (config.PIDParams, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return config.PIDParams{}, err
	}
	return ch.heater.cfg.PID, nil
}

func (self *Heaters) Set_pid(tag project.ChannelTag, pid config.PIDParams) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return err
	}
	ch.heater.cfg.PID = pid
	return nil
}

// Save_settings persists the PID coefficients of every heater.
func (self *Heaters) Save_settings() error {
	self.mu.Lock()
	values := map[string]config.PIDParams{}
	for _, ch := range self.heaters {
		values[ch.name] = ch.heater.cfg.PID
	}
	self.mu.Unlock()
	if self.para == nil {
		return nil
	}
	return errors.Wrap(self.para.SavePID(values), "save pid settings")
}

func (self *Heaters) Set_raw_output(tag project.ChannelTag, duty float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_HEATER)
	if err != nil {
		return err
	}
	ch.heater.raw = duty
	ch.heater.rawMode = true
	return nil
}

func (self *Heaters) Set_pwm_output(tag project.ChannelTag, duty float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	ch, err := self.resolve(tag, KIND_PWM, KIND_HEATER)
	if err != nil {
		return err
	}
	if ch.heater != nil {
		ch.heater.raw = duty
		ch.heater.rawMode = true
		return nil
	}
	ch.duty = duty
	return nil
}

// Pwm_duty reports the last duty written to a PWM channel.
func (self *Heaters) Pwm_duty(name string) float64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	if ch, ok := self.channels[name]; ok {
		return ch.duty
	}
	return 0
}
