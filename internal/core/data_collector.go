package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	uatomic "go.uber.org/atomic"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/config"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/types"
)

// DataCollector is the black box: it mirrors the blackboard into an
// append-only log file for the operator UI and post-mortem analysis, and it
// feeds operator command frames from the UI topic into the blackboard.
// Write failures are non-fatal; the task complains once and keeps ticking.
type DataCollector struct {
	id        string
	topics    messaging.Topics
	bb        *blackboard.Blackboard
	lastEvent *uatomic.String
	log       *logger.Logger
	cfg       config.CollectorConfig

	outPath     string
	file        *os.File
	writeFailed bool
}

func NewDataCollector(
	id string,
	cfg config.CollectorConfig,
	outDir string,
	bb *blackboard.Blackboard,
	lastEvent *uatomic.String,
	l *logger.Logger,
) *DataCollector {
	return &DataCollector{
		id:        id,
		topics:    messaging.NewTopics(id),
		bb:        bb,
		lastEvent: lastEvent,
		log:       l.WithTag("data-collector"),
		cfg:       cfg,
		outPath:   filepath.Join(outDir, "cam_"+id+".log"),
	}
}

// Register subscribes the operator command topic. The collector is the
// sole writer of the operator mailbox.
func (d *DataCollector) Register(bus Bus) {
	bus.Subscribe(d.topics.Operator(), d.onOperator)
}

func (d *DataCollector) onOperator(_ string, payload []byte) {
	var cmd types.OperatorCommands
	if err := json.Unmarshal(payload, &cmd); err != nil {
		d.log.Warnf("Dropping malformed operator payload: %v", err)
		return
	}

	d.bb.Lock()
	d.bb.SetOperator(cmd)
	d.bb.Unlock()
	d.bb.NotifyAll()
	d.log.Debugf("Operator command: auto=%t manual=%t rearm=%t accel=%.0f turn=%.0f",
		cmd.Auto, cmd.Manual, cmd.Rearm, cmd.Accel, cmd.Turn)
}

// Open creates the output directory and the append-only log file.
func (d *DataCollector) Open() error {
	if err := os.MkdirAll(filepath.Dir(d.outPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(d.outPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	d.file = f
	d.log.Infof("Black box open at %s", d.outPath)
	return nil
}

func (d *DataCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Infof("Collector stopped")
			return
		case <-ticker.C:
			d.snapshot(time.Now())
		}
	}
}

func (d *DataCollector) snapshot(now time.Time) {
	snap := d.bb.TakeSnapshot()
	kind := d.lastEvent.Load()

	line := fmt.Sprintf("[%s] cam=%s fault=%t auto=%t x=%.3f y=%.3f ang=%.3f temp=%.3f accel=%d steer=%d event=%s\n",
		now.Format("2006-01-02 15:04:05"),
		d.id,
		snap.Vehicle.Fault,
		snap.Vehicle.Automatic,
		snap.Pose.X,
		snap.Pose.Y,
		snap.Pose.Heading,
		snap.Pose.Temperature,
		snap.Output.Accel,
		snap.Output.Steer,
		kind,
	)

	if _, err := d.file.WriteString(line); err != nil {
		if !d.writeFailed {
			fmt.Fprintf(os.Stderr, "data-collector: writing %s: %v\n", d.outPath, err)
			d.writeFailed = true
		}
		return
	}
	d.writeFailed = false
}

// Close closes the log file.
func (d *DataCollector) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}
