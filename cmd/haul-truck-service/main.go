package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"haul-truck-service/internal/config"
	"haul-truck-service/internal/core"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
)

func main() {
	var serviceLogLevel int
	var cfgPath string
	var outDir string
	var lockChecks bool
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.StringVar(&cfgPath, "config", "", "Optional YAML configuration file")
	flag.StringVar(&outDir, "out", "", "Black-box log directory (overrides config)")
	flag.BoolVar(&lockChecks, "lock-checks", false, "Assert no shared mutex is held across bus calls")
	flag.Parse()

	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		l.Errorf("Configuration error: %v", err)
		os.Exit(2)
	}
	if outDir != "" {
		cfg.OutDir = outDir
	}
	cfg.GuardChecks = lockChecks

	l.Infof("Starting haul truck service, truck id %s", cfg.TruckID)

	client := messaging.New(messaging.Config{
		Host:     cfg.BrokerHost,
		Port:     config.BrokerPort,
		ClientID: "caminhao-" + cfg.TruckID,
	}, l)

	system := core.NewTruckSystem(cfg, client, l)

	ctx := context.Background()
	if err := system.Start(ctx); err != nil {
		l.Errorf("Failed to start system: %v", err)
		os.Exit(1)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.ConnectTimeout)
	if err := client.Connect(connectCtx); err != nil {
		cancelConnect()
		l.Errorf("Failed to reach broker: %v", err)
		system.Shutdown()
		os.Exit(1)
	}
	cancelConnect()

	l.Infof("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	l.Infof("Received signal %v, shutting down...", sig)
	system.Shutdown()
	if err := client.Close(); err != nil {
		l.Warnf("Closing bus client: %v", err)
	}
	l.Infof("Shutdown complete")
}
