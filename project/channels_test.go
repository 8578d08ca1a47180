package project

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
)

func TestResolveChannels(t *testing.T) {
	heaters := newFakeHeaters("heater_extruder", "temp_extruder")
	channels, err := ResolveChannels(heaters, ChannelNames{HeaterExtruder: "heater_extruder", TempExtruder: "temp_extruder"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if channels.HeaterBed != nil || channels.PwmExtruder != nil {
		t.Fatalf("unexpected optional channels %+v", channels)
	}
	extruders, sensors, heaterCount := channels.Counts()
	if extruders != 1 || sensors != 1 || heaterCount != 1 {
		t.Fatalf("unexpected counts %d %d %d", extruders, sensors, heaterCount)
	}
	if channels.Heater(1) != nil || channels.Heater(0) == nil {
		t.Fatalf("unexpected heater selection")
	}
}

func TestResolveChannelsPwmOnly(t *testing.T) {
	heaters := newFakeHeaters("pwm_laser_power")
	channels, err := ResolveChannels(heaters, ChannelNames{PwmExtruder: "pwm_laser_power", HeaterBed: "heater_bed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if channels.PwmExtruder == nil {
		t.Fatalf("pwm channel not resolved")
	}
}

func TestResolveChannelsMissing(t *testing.T) {
	heaters := newFakeHeaters("heater_extruder")
	_, err := ResolveChannels(heaters, DefaultChannelNames())
	if err == nil {
		t.Fatalf("expected startup error")
	}
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	// every missing channel is reported plus the config error
	if n := len(multierr.Errors(pkgerrors.Cause(err))); n != 6 {
		t.Fatalf("expected 6 errors, got %d: %v", n, err)
	}
}
