package sys

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/petermattis/goid"

	"gproc/common/logger"
)

func GetGID() uint64 {
	id := goid.Get()
	return uint64(id)
}

func GetCpuInfo() string {
	cpuInfoFilebytes, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "?"
	}

	var coreCount int
	var modelName string
	cpuInfoLines := strings.Split(string(cpuInfoFilebytes), "\n")
	for _, line := range cpuInfoLines {
		if !strings.Contains(line, ":") {
			continue
		}
		lines := strings.SplitN(line, ":", 2)
		fieldName := strings.TrimSpace(lines[0])
		if fieldName == "processor" {
			coreCount++
		} else if fieldName == "model name" && modelName == "" {
			modelName = strings.TrimSpace(lines[1])
		}
	}
	return fmt.Sprintf("%d core %s", coreCount, modelName)
}

// CatchPanic logs a recovered panic with the goroutine id and stack.
// Use as `defer sys.CatchPanic()`; a panic with the value "exit" is re-raised.
func CatchPanic() {
	if err := recover(); err != nil {
		if msg, ok := err.(string); ok && msg == "exit" {
			panic(msg)
		}
		logger.Error("panic:", GetGID(), err, string(debug.Stack()))
	}
}
