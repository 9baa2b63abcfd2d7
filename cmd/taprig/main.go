package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stentorlab/taprig/chart"
	"github.com/stentorlab/taprig/controller"
)

func main() {
	var (
		configPath  string
		port        string
		sessionName string
		listPorts   bool
		verbose     bool
	)
	flag.StringVar(&configPath, "config", controller.DefaultConfigPath(), "Path to the YAML config")
	flag.StringVar(&port, "port", "", "Serial port (overrides config; \"none\" runs without hardware)")
	flag.StringVar(&sessionName, "session", "", "Session name for the chart server")
	flag.BoolVar(&listPorts, "list-ports", false, "List USB serial ports and exit")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	if listPorts {
		ports, err := controller.GetSerialPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	if err := run(configPath, port, sessionName, verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, port, sessionName string, verbose bool) error {
	log, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := controller.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = cfg.FromEnv()
	if port != "" {
		cfg.SerialPort = port
	}
	if sessionName != "" {
		cfg.SessionName = sessionName
	}

	if cfg.SerialPort == "" {
		ports, err := controller.GetSerialPorts()
		if err != nil {
			return fmt.Errorf("no serial port configured and discovery failed: %w", err)
		}
		cfg.SerialPort = ports[0]
		log.Info("auto-selected serial port", zap.String("port", cfg.SerialPort))
	}

	link, err := controller.OpenLink(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		return err
	}
	defer link.Close()

	calib, err := controller.LoadCalibration(cfg.Calibration)
	if err != nil {
		log.Warn("calibration store unreadable, starting fresh", zap.Error(err))
	}

	c := controller.NewCoordinator(cfg, link, calib, log, nil)
	if cfg.ChartAddr != "" {
		name := cfg.SessionName
		if name == "" {
			name = "taprig"
		}
		c.AddObserver(chart.NewObserver(chart.NewClient(cfg.ChartAddr), name, log))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.Run(ctx, os.Stdin, os.Stdout)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	return zcfg.Build()
}
