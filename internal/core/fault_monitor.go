package core

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"haul-truck-service/internal/config"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/notifier"
	"haul-truck-service/internal/types"
)

// FaultMonitor runs the threshold + hysteresis + watchdog state machine
// over the dedicated fault topics. Every effective state transition fires
// exactly one event on the notifier; no transition, no event.
type FaultMonitor struct {
	id     string
	topics messaging.Topics
	events *notifier.Notifier
	log    *logger.Logger
	cfg    config.FaultConfig

	mu            sync.Mutex
	thermalWarn   bool
	thermalFault  bool
	elecFault     bool
	hydFault      bool
	sensorLost    bool
	lastMessageAt time.Time
}

func NewFaultMonitor(id string, cfg config.FaultConfig, events *notifier.Notifier, l *logger.Logger) *FaultMonitor {
	return &FaultMonitor{
		id:            id,
		topics:        messaging.NewTopics(id),
		events:        events,
		log:           l.WithTag("fault-monitor"),
		cfg:           cfg,
		lastMessageAt: time.Now(),
	}
}

// Register subscribes the three fault topics.
func (m *FaultMonitor) Register(bus Bus) {
	bus.Subscribe(m.topics.Temperature(), m.onTemperature)
	bus.Subscribe(m.topics.ElectricalFault(), m.onElectrical)
	bus.Subscribe(m.topics.HydraulicFault(), m.onHydraulic)
}

// Run is the sensor watchdog: it scans every WatchdogPeriod and fires
// sensor-timeout once when the bus has been silent longer than the timeout.
func (m *FaultMonitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.lastMessageAt = time.Now()
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.WatchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Infof("Watchdog stopped")
			return
		case <-ticker.C:
			m.checkWatchdog(time.Now())
		}
	}
}

func (m *FaultMonitor) checkWatchdog(now time.Time) {
	m.mu.Lock()
	fire := !m.sensorLost && now.Sub(m.lastMessageAt) > m.cfg.SensorTimeout
	if fire {
		m.sensorLost = true
	}
	m.mu.Unlock()

	if fire {
		m.log.Warnf("No sensor message for more than %v", m.cfg.SensorTimeout)
		m.events.Fire(types.SensorTimeout)
	}
}

// touch records bus activity and clears a latched sensor loss.
func (m *FaultMonitor) touch(now time.Time) {
	m.mu.Lock()
	resumed := m.sensorLost
	m.sensorLost = false
	m.lastMessageAt = now
	m.mu.Unlock()

	if resumed {
		m.log.Infof("Sensor messages resumed")
		m.events.Fire(types.Normalized)
	}
}

func (m *FaultMonitor) onTemperature(_ string, payload []byte) {
	m.touch(time.Now())

	t, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		m.log.Warnf("Dropping malformed temperature payload %q: %v", payload, err)
		return
	}

	for _, kind := range m.updateThermal(t) {
		m.events.Fire(kind)
	}
}

// updateThermal applies the two-threshold hysteresis. A warning may only
// rise on a sample where the fault bit was already clear when the sample
// arrived: the fault suppresses warnings until after it falls.
func (m *FaultMonitor) updateThermal(t float64) []types.FaultKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fires []types.FaultKind
	wasFault := m.thermalFault

	if m.thermalFault {
		if t < m.cfg.ThermalFaultFall {
			m.thermalFault = false
			fires = append(fires, types.Normalized)
			m.log.Infof("Thermal fault cleared at %.1f", t)
		}
	} else if t > m.cfg.ThermalFaultRise {
		m.thermalFault = true
		m.thermalWarn = false
		fires = append(fires, types.ThermalFault)
		m.log.Warnf("Thermal fault at %.1f", t)
	}

	if !m.thermalFault {
		if m.thermalWarn {
			if t < m.cfg.ThermalWarnFall {
				m.thermalWarn = false
				fires = append(fires, types.Normalized)
				m.log.Infof("Thermal warning cleared at %.1f", t)
			}
		} else if !wasFault && t > m.cfg.ThermalWarnRise {
			m.thermalWarn = true
			fires = append(fires, types.ThermalWarning)
			m.log.Warnf("Thermal warning at %.1f", t)
		}
	}
	return fires
}

func (m *FaultMonitor) onElectrical(_ string, payload []byte) {
	m.onBoolFault(payload, &m.elecFault, types.ElectricalFault, "electrical")
}

func (m *FaultMonitor) onHydraulic(_ string, payload []byte) {
	m.onBoolFault(payload, &m.hydFault, types.HydraulicFault, "hydraulic")
}

// onBoolFault handles the "0"/"1"/"true"/"false" fault topics: rising edge
// fires the fault kind, falling edge fires normalized.
func (m *FaultMonitor) onBoolFault(payload []byte, bit *bool, kind types.FaultKind, name string) {
	m.touch(time.Now())

	v, ok := parseBoolPayload(payload)
	if !ok {
		m.log.Warnf("Dropping malformed %s fault payload %q", name, payload)
		return
	}

	m.mu.Lock()
	var fire types.FaultKind = types.FaultNone
	if v && !*bit {
		*bit = true
		fire = kind
	} else if !v && *bit {
		*bit = false
		fire = types.Normalized
	}
	m.mu.Unlock()

	switch fire {
	case types.FaultNone:
	case types.Normalized:
		m.log.Infof("%s fault cleared", name)
		m.events.Fire(fire)
	default:
		m.log.Warnf("%s fault raised", name)
		m.events.Fire(fire)
	}
}

func parseBoolPayload(payload []byte) (bool, bool) {
	switch strings.TrimSpace(string(payload)) {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	}
	return false, false
}
