// Package config resolves the service configuration from defaults, the
// environment (CAMINHAO_ID, BROKER_HOST) and an optional YAML file. The
// broker port is 1883 by external contract and is not configurable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const BrokerPort = 1883

type Config struct {
	TruckID    string
	BrokerHost string
	OutDir     string

	ConnectTimeout time.Duration

	// GuardChecks enables the held-lock assertion around every bus call.
	GuardChecks bool

	Filter     FilterConfig
	Fault      FaultConfig
	Planner    PlannerConfig
	Controller ControllerConfig
	Command    CommandConfig
	Collector  CollectorConfig
}

// FilterConfig tunes the sensor filter batch.
type FilterConfig struct {
	// Window is both the raw-buffer capacity and the batch size of the
	// moving average.
	Window int
	// FilteredCapacity bounds the filtered-pose queue feeding the planner.
	FilteredCapacity int
}

// FaultConfig tunes the thermal hysteresis and the sensor watchdog.
type FaultConfig struct {
	ThermalFaultRise float64
	ThermalFaultFall float64
	ThermalWarnRise  float64
	ThermalWarnFall  float64

	WatchdogPeriod time.Duration
	SensorTimeout  time.Duration
}

// PlannerConfig tunes the route planner tick and goal seeking.
type PlannerConfig struct {
	Tick             time.Duration
	ArrivalTolerance float64
	VMax             float64
	ApproachGain     float64
	HeadingKp        float64
	// SetpointCapacity bounds the setpoint queue feeding the controller.
	SetpointCapacity int
}

// ControllerConfig tunes the navigation controller gains.
type ControllerConfig struct {
	KpVel float64
	KpAng float64
}

// CommandConfig tunes the command logic tick and the bumpless slew steps.
type CommandConfig struct {
	Tick      time.Duration
	AccelSlew int
	SteerSlew int
}

// CollectorConfig tunes the data collector.
type CollectorConfig struct {
	Tick time.Duration
}

func Default() *Config {
	return &Config{
		TruckID:        "1",
		BrokerHost:     "localhost",
		OutDir:         "output",
		ConnectTimeout: 30 * time.Second,
		Filter: FilterConfig{
			Window:           10,
			FilteredCapacity: 100,
		},
		Fault: FaultConfig{
			ThermalFaultRise: 120,
			ThermalFaultFall: 115,
			ThermalWarnRise:  95,
			ThermalWarnFall:  90,
			WatchdogPeriod:   100 * time.Millisecond,
			SensorTimeout:    1000 * time.Millisecond,
		},
		Planner: PlannerConfig{
			Tick:             500 * time.Millisecond,
			ArrivalTolerance: 1.0,
			VMax:             2.0,
			ApproachGain:     0.8,
			HeadingKp:        1.0,
			SetpointCapacity: 8,
		},
		Controller: ControllerConfig{
			KpVel: 40,
			KpAng: 1.0,
		},
		Command: CommandConfig{
			Tick:      50 * time.Millisecond,
			AccelSlew: 20,
			SteerSlew: 45,
		},
		Collector: CollectorConfig{
			Tick: 500 * time.Millisecond,
		},
	}
}

// file mirrors Config in YAML form. Durations are milliseconds, matching
// the tick granularity of the control loops.
type file struct {
	OutDir string `yaml:"out_dir"`

	Filter struct {
		Window           int `yaml:"window"`
		FilteredCapacity int `yaml:"filtered_capacity"`
	} `yaml:"filter"`

	Fault struct {
		ThermalFaultRise float64 `yaml:"thermal_fault_rise"`
		ThermalFaultFall float64 `yaml:"thermal_fault_fall"`
		ThermalWarnRise  float64 `yaml:"thermal_warn_rise"`
		ThermalWarnFall  float64 `yaml:"thermal_warn_fall"`
		WatchdogPeriodMs int     `yaml:"watchdog_period_ms"`
		SensorTimeoutMs  int     `yaml:"sensor_timeout_ms"`
	} `yaml:"fault"`

	Planner struct {
		TickMs           int     `yaml:"tick_ms"`
		ArrivalTolerance float64 `yaml:"arrival_tolerance"`
		VMax             float64 `yaml:"v_max"`
		ApproachGain     float64 `yaml:"approach_gain"`
		HeadingKp        float64 `yaml:"heading_kp"`
	} `yaml:"planner"`

	Controller struct {
		KpVel float64 `yaml:"kp_vel"`
		KpAng float64 `yaml:"kp_ang"`
	} `yaml:"controller"`

	Command struct {
		TickMs    int `yaml:"tick_ms"`
		AccelSlew int `yaml:"accel_slew"`
		SteerSlew int `yaml:"steer_slew"`
	} `yaml:"command"`

	Collector struct {
		TickMs int `yaml:"tick_ms"`
	} `yaml:"collector"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then the environment. A bad truck id or an unreadable file is
// a fatal configuration error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		var f file
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		applyFile(cfg, &f)
	}

	if id := os.Getenv("CAMINHAO_ID"); id != "" {
		cfg.TruckID = id
	}
	if host := os.Getenv("BROKER_HOST"); host != "" {
		cfg.BrokerHost = host
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f *file) {
	if f.OutDir != "" {
		cfg.OutDir = f.OutDir
	}
	if f.Filter.Window > 0 {
		cfg.Filter.Window = f.Filter.Window
	}
	if f.Filter.FilteredCapacity > 0 {
		cfg.Filter.FilteredCapacity = f.Filter.FilteredCapacity
	}
	if f.Fault.ThermalFaultRise != 0 {
		cfg.Fault.ThermalFaultRise = f.Fault.ThermalFaultRise
	}
	if f.Fault.ThermalFaultFall != 0 {
		cfg.Fault.ThermalFaultFall = f.Fault.ThermalFaultFall
	}
	if f.Fault.ThermalWarnRise != 0 {
		cfg.Fault.ThermalWarnRise = f.Fault.ThermalWarnRise
	}
	if f.Fault.ThermalWarnFall != 0 {
		cfg.Fault.ThermalWarnFall = f.Fault.ThermalWarnFall
	}
	if f.Fault.WatchdogPeriodMs > 0 {
		cfg.Fault.WatchdogPeriod = time.Duration(f.Fault.WatchdogPeriodMs) * time.Millisecond
	}
	if f.Fault.SensorTimeoutMs > 0 {
		cfg.Fault.SensorTimeout = time.Duration(f.Fault.SensorTimeoutMs) * time.Millisecond
	}
	if f.Planner.TickMs > 0 {
		cfg.Planner.Tick = time.Duration(f.Planner.TickMs) * time.Millisecond
	}
	if f.Planner.ArrivalTolerance > 0 {
		cfg.Planner.ArrivalTolerance = f.Planner.ArrivalTolerance
	}
	if f.Planner.VMax > 0 {
		cfg.Planner.VMax = f.Planner.VMax
	}
	if f.Planner.ApproachGain > 0 {
		cfg.Planner.ApproachGain = f.Planner.ApproachGain
	}
	if f.Planner.HeadingKp > 0 {
		cfg.Planner.HeadingKp = f.Planner.HeadingKp
	}
	if f.Controller.KpVel > 0 {
		cfg.Controller.KpVel = f.Controller.KpVel
	}
	if f.Controller.KpAng > 0 {
		cfg.Controller.KpAng = f.Controller.KpAng
	}
	if f.Command.TickMs > 0 {
		cfg.Command.Tick = time.Duration(f.Command.TickMs) * time.Millisecond
	}
	if f.Command.AccelSlew > 0 {
		cfg.Command.AccelSlew = f.Command.AccelSlew
	}
	if f.Command.SteerSlew > 0 {
		cfg.Command.SteerSlew = f.Command.SteerSlew
	}
	if f.Collector.TickMs > 0 {
		cfg.Collector.Tick = time.Duration(f.Collector.TickMs) * time.Millisecond
	}
}

func (c *Config) validate() error {
	id, err := strconv.Atoi(c.TruckID)
	if err != nil || id < 1 {
		return fmt.Errorf("invalid truck id %q: must be a positive integer", c.TruckID)
	}
	if c.BrokerHost == "" {
		return fmt.Errorf("broker host must not be empty")
	}
	if c.Filter.Window < 1 {
		return fmt.Errorf("filter window must be at least 1, got %d", c.Filter.Window)
	}
	if c.Fault.ThermalFaultFall >= c.Fault.ThermalFaultRise {
		return fmt.Errorf("thermal fault hysteresis inverted: fall %.1f >= rise %.1f",
			c.Fault.ThermalFaultFall, c.Fault.ThermalFaultRise)
	}
	if c.Fault.ThermalWarnFall >= c.Fault.ThermalWarnRise {
		return fmt.Errorf("thermal warning hysteresis inverted: fall %.1f >= rise %.1f",
			c.Fault.ThermalWarnFall, c.Fault.ThermalWarnRise)
	}
	return nil
}
