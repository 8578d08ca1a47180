package project

import (
	pongo2 "github.com/flosch/pongo2/v5"
	"github.com/pkg/errors"
)

const DEFAULT_FIRMWARE_TEMPLATE = "FIRMWARE_NAME: {{ name }} FIRMWARE_URL:{{ url }} PROTOCOL_VERSION:{{ protocol }} " +
	"MACHINE_TYPE:{{ machine }} EXTRUDER_COUNT:{{ extruders }} TEMP_SENSOR_COUNT:{{ sensors }} HEATER_COUNT:{{ heaters }}"

type FirmwareInfo struct {
	Name        string `yaml:"name" toml:"name"`
	URL         string `yaml:"url" toml:"url"`
	Protocol    string `yaml:"protocol" toml:"protocol"`
	MachineType string `yaml:"machine_type" toml:"machine_type"`
	Template    string `yaml:"template" toml:"template"`
}

func DefaultFirmwareInfo() FirmwareInfo {
	return FirmwareInfo{
		Name:        "gproc",
		URL:         "https//github.com/gproc/gproc/",
		Protocol:    "1.0",
		MachineType: "Mendel",
		Template:    DEFAULT_FIRMWARE_TEMPLATE,
	}
}

// Firmware renders the M115 identity line.
type Firmware struct {
	info     FirmwareInfo
	template *pongo2.Template
}

func NewFirmware(info FirmwareInfo) (*Firmware, error) {
	src := info.Template
	if src == "" {
		src = DEFAULT_FIRMWARE_TEMPLATE
	}
	set := pongo2.NewSet("firmware", pongo2.DefaultLoader)
	tpl, err := set.FromString(src)
	if err != nil {
		return nil, errors.Wrap(err, "parse firmware template")
	}
	return &Firmware{info: info, template: tpl}, nil
}

func (self *Firmware) Render(extruders, sensors, heaters int) (string, error) {
	return self.template.Execute(pongo2.Context{
		"name":      self.info.Name,
		"url":       self.info.URL,
		"protocol":  self.info.Protocol,
		"machine":   self.info.MachineType,
		"extruders": extruders,
		"sensors":   sensors,
		"heaters":   heaters,
	})
}
