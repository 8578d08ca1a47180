package project

import "testing"

func TestFirmwareCustomTemplate(t *testing.T) {
	info := DefaultFirmwareInfo()
	info.Template = "{{ name }} E{{ extruders }} S{{ sensors }} H{{ heaters }}"
	fw, err := NewFirmware(info)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, err := fw.Render(1, 0, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "gproc E1 S0 H3" {
		t.Fatalf("unexpected identity %q", msg)
	}
}

func TestFirmwareBadTemplate(t *testing.T) {
	info := DefaultFirmwareInfo()
	info.Template = "{{ name "
	if _, err := NewFirmware(info); err == nil {
		t.Fatalf("expected parse error")
	}
}
