package main

import (
	"flag"
	"io"
	"os"

	"gproc/common/logger"
	"gproc/common/utils/sys"
	"gproc/project"
	"gproc/project/sim"
)

func main() {
	configPath := flag.String("config", "", "machine config file (.yaml or .toml)")
	port := flag.String("port", "", "serial port of the host link, stdin/stdout when empty")
	logfile := flag.String("logfile", "", "log file, overrides the config")
	level := flag.String("level", "", "log level, overrides the config")
	flag.Parse()

	cfg, err := project.LoadMachineConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *logfile != "" {
		cfg.Log.File = *logfile
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	logger.InitLogger(logger.ParseLevel(cfg.Log.Level), cfg.Log.File, cfg.Log.Color,
		cfg.Log.MaxSize, cfg.Log.MaxBackups, cfg.Log.MaxAge)
	defer logger.Sync()
	logger.Infof("main thread %d running on %s", sys.GetGID(), sys.GetCpuInfo())

	engine := sim.NewEngine(nil)
	switches := sim.NewSwitches(cfg)
	gp, err := project.NewGCodeProcess(cfg.Options(), project.Collaborators{
		Trajectory: engine,
		Heaters:    sim.NewHeaters(cfg.Heaters, cfg.Pwm, cfg.Para(), nil),
		Homer:      sim.NewHomer(cfg, switches, engine),
		Switches:   switches,
		Machine:    sim.NewMachine(),
		Axes:       cfg,
	})
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}

	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if cfg.Serial.Port != "" {
		link, err := project.OpenSerial(cfg.Serial)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer link.Close()
		in, out = link, link
	}
	project.NewConsole(gp, in, out).Run()
}
