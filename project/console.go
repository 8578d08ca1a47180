package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/tarm/serial"

	"gproc/common/logger"
	"gproc/common/utils/sys"
	"gproc/project/queue"
)

const (
	MM_PER_INCH       = 25.4
	OPEN_SERIAL_ERROR = "Unable to open serial port"
)

// CommandRecord is the line format read by the console: one JSON object per
// line, lengths in the active units, feed in units per minute.
type CommandRecord struct {
	G *int     `json:"g,omitempty"`
	M *int     `json:"m,omitempty"`
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
	E *float64 `json:"e,omitempty"`
	F *float64 `json:"f,omitempty"`
	P *int     `json:"p,omitempty"`
	S *float64 `json:"s,omitempty"`
	T *int     `json:"t,omitempty"`
}

// ToCommand scales the record into a Command; inches selects 25.4 mm units.
func (self *CommandRecord) ToCommand(inches bool) (*Command, error) {
	cmd := &Command{}
	switch {
	case self.G != nil && self.M != nil:
		return nil, errors.New("record has both g and m")
	case self.G != nil:
		cmd.Class, cmd.Code = CLASS_G, *self.G
	case self.M != nil:
		cmd.Class, cmd.Code = CLASS_M, *self.M
	}
	scale := 1.0
	if inches {
		scale = MM_PER_INCH
	}
	for axis, v := range [NUM_AXES]*float64{self.X, self.Y, self.Z, self.E} {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.Abs(math.Round(*v*scale*NM_PER_MM)) > math.MaxInt32 {
			return nil, errors.Errorf("%s %g out of range", strings.ToLower(Axis(axis).String()), *v)
		}
		cmd.Axes[axis] = MM2POS(*v * scale)
		cmd.SeenAxes[axis] = true
	}
	if self.F != nil {
		if *self.F < 0 {
			return nil, errors.Errorf("negative feed %g", *self.F)
		}
		if math.IsNaN(*self.F) || math.Round(*self.F*scale) > math.MaxUint32 {
			return nil, errors.Errorf("f %g out of range", *self.F)
		}
		cmd.F = uint32(math.Round(*self.F * scale))
		cmd.SeenF = true
	}
	if self.P != nil {
		cmd.P, cmd.SeenP = *self.P, true
	}
	if self.S != nil {
		cmd.S, cmd.SeenS = *self.S, true
	}
	if self.T != nil {
		cmd.T, cmd.SeenT = *self.T, true
	}
	return cmd, nil
}

// Console feeds command records from a host link into the gcode process and
// writes responses back, each command followed by "ok".
type Console struct {
	gp      *GCodeProcess
	in      io.Reader
	out     io.Writer
	outLock sync.Mutex
	queue   *queue.Queue
	Session string
}

func NewConsole(gp *GCodeProcess, in io.Reader, out io.Writer) *Console {
	self := &Console{
		gp:      gp,
		in:      in,
		out:     out,
		queue:   queue.NewQueue(),
		Session: uuid.NewV4().String(),
	}
	gp.Register_output_handler(self.Respond_raw)
	return self
}

func (self *Console) Respond_raw(msg string) {
	self.outLock.Lock()
	defer self.outLock.Unlock()
	if _, err := io.WriteString(self.out, msg+"\n"); err != nil {
		logger.Warnf("console %s: write: %v", self.Session, err)
	}
}

func (self *Console) reader() {
	defer self.queue.Close()
	scanner := bufio.NewScanner(self.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		self.queue.Put_nowait(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("console %s: read: %v", self.Session, err)
	}
}

// Run reads records until the input ends. Commands are dispatched on the
// calling goroutine in arrival order.
func (self *Console) Run() {
	logger.Infof("console session %s started", self.Session)
	go self.reader()
	for {
		item := self.queue.Get()
		if item == nil {
			break
		}
		self.handle(item.(string))
	}
	logger.Infof("console session %s closed", self.Session)
}

func (self *Console) handle(line string) {
	defer self.Respond_raw("ok")
	defer sys.CatchPanic()

	if self.gp.Debug_flags()&DEBUG_ECHO != 0 {
		self.Respond_raw("echo: " + line)
	}
	var record CommandRecord
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		self.Respond_raw(fmt.Sprintf("E: bad record: %v", err))
		return
	}
	cmd, err := record.ToCommand(self.gp.Position().Inches)
	if err != nil {
		self.Respond_raw(fmt.Sprintf("E: bad record: %v", err))
		return
	}
	if err = self.gp.Process(cmd); err != nil && !IsUnknownCode(err) {
		self.Respond_raw("E: " + err.Error())
	}
}

// OpenSerial opens the host link on a serial port.
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: cfg.Port, Baud: cfg.Baud})
	if err != nil {
		logger.Errorf("%s %s: %s", OPEN_SERIAL_ERROR, cfg.Port, err)
		return nil, errors.Wrapf(err, "%s %s", OPEN_SERIAL_ERROR, cfg.Port)
	}
	return port, nil
}
