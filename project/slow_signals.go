package project

import "time"

const DEFAULT_POLL_INTERVAL = 100 * time.Millisecond

// SlowSignals holds the pending temperature waits set by M109/M190.
type SlowSignals struct {
	heaters  IHeaters
	interval time.Duration

	extruderPending bool
	bedPending      bool
	extruder        ChannelTag
	bed             ChannelTag
}

func NewSlowSignals(heaters IHeaters, interval time.Duration) *SlowSignals {
	if interval <= 0 {
		interval = DEFAULT_POLL_INTERVAL
	}
	return &SlowSignals{heaters: heaters, interval: interval}
}

func (self *SlowSignals) Set_extruder_pending(heater ChannelTag) {
	self.extruder = heater
	self.extruderPending = heater != nil
}

func (self *SlowSignals) Set_bed_pending(heater ChannelTag) {
	self.bed = heater
	self.bedPending = heater != nil
}

func (self *SlowSignals) Pending() bool {
	return self.extruderPending || self.bedPending
}

func (self *SlowSignals) Extruder_pending() bool { return self.extruderPending }

func (self *SlowSignals) Bed_pending() bool { return self.bedPending }

// Wait blocks until every pending heater reports its target reached. There is
// no timeout. Both flags are cleared on return.
func (self *SlowSignals) Wait() {
	waitUntil(self.interval, func() bool {
		if self.extruderPending && !self.heaters.Temp_reached(self.extruder) {
			return false
		}
		if self.bedPending && !self.heaters.Temp_reached(self.bed) {
			return false
		}
		return true
	})
	self.extruderPending = false
	self.bedPending = false
}

func waitUntil(interval time.Duration, cond func() bool) {
	if cond() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if cond() {
			return
		}
	}
}
