package config

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"

	"gproc/common/file"
	"gproc/common/logger"
)

// PIDParams mirrors the coefficients the heater loop exposes for tuning.
type PIDParams struct {
	P        float64 `json:"p"`
	I        float64 `json:"i"`
	D        float64 `json:"d"`
	ILimit   float64 `json:"i_limit"`
	FFFactor float64 `json:"ff_factor"`
	FFOffset float64 `json:"ff_offset"`
}

// Para is the on-disk layout of persisted tunables.
type Para struct {
	PID         map[string]PIDParams `json:"pid,omitempty"`
	Calibration map[string]float64   `json:"calibration,omitempty"`
}

// ParaStore persists tunables written through by explicit commands (M134, M207).
type ParaStore struct {
	path string
	mu   sync.Mutex
	para Para
}

func NewParaStore(path string) *ParaStore {
	self := &ParaStore{path: path}
	self.para = readParaFile(path)
	return self
}

func readParaFile(paraFile string) Para {
	para := Para{}
	if paraFile == "" {
		return para
	}
	content, err := os.ReadFile(paraFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("read para file error: %v", err)
		}
		return para
	}
	if err = json.Unmarshal(content, &para); err != nil {
		logger.Warnf("unmarshal %s error: %v", paraFile, err)
		return Para{}
	}
	return para
}

func (self *ParaStore) saveParaFile() error {
	if self.path == "" {
		return nil
	}
	d, err := json.MarshalIndent(self.para, "", "\t")
	if err != nil {
		return err
	}
	return errors.Wrapf(file.WriteFileWithSync(self.path, d), "save %s", self.path)
}

func (self *ParaStore) PID(name string) (PIDParams, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	pid, ok := self.para.PID[name]
	return pid, ok
}

func (self *ParaStore) SavePID(values map[string]PIDParams) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.para.PID == nil {
		self.para.PID = map[string]PIDParams{}
	}
	for name, pid := range values {
		self.para.PID[name] = pid
	}
	return self.saveParaFile()
}

// Calibration returns a persisted switch position in meters.
func (self *ParaStore) Calibration(axis string) (float64, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	pos, ok := self.para.Calibration[axis]
	return pos, ok
}

func (self *ParaStore) SaveCalibration(axis string, pos float64) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.para.Calibration == nil {
		self.para.Calibration = map[string]float64{}
	}
	self.para.Calibration[axis] = pos
	return self.saveParaFile()
}
