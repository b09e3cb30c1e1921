package core

import (
	"encoding/json"
	"sync"
	"time"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/ring"
	"haul-truck-service/internal/types"
)

// SensorFilter is the first pipeline stage: it batches raw telemetry frames
// and reduces each full batch to one moving-average pose. It is entirely
// event-driven off the bus callback; it owns no goroutine.
type SensorFilter struct {
	id       string
	topics   messaging.Topics
	bb       *blackboard.Blackboard
	filtered *syncQueue[types.FilteredPose]
	log      *logger.Logger

	mu  sync.Mutex
	raw *ring.Buffer[rawSample]
}

type rawSample struct {
	payload []byte
	at      time.Time
}

func NewSensorFilter(
	id string,
	window int,
	bb *blackboard.Blackboard,
	filtered *syncQueue[types.FilteredPose],
	l *logger.Logger,
) *SensorFilter {
	return &SensorFilter{
		id:       id,
		topics:   messaging.NewTopics(id),
		bb:       bb,
		filtered: filtered,
		log:      l.WithTag("sensor-filter"),
		raw:      ring.New[rawSample](window, ring.Reject),
	}
}

// Register subscribes the raw telemetry topic.
func (f *SensorFilter) Register(bus Bus) {
	bus.Subscribe(f.topics.SensorRaw(), f.onRaw)
}

func (f *SensorFilter) onRaw(_ string, payload []byte) {
	now := time.Now()

	f.mu.Lock()
	if !f.raw.Push(rawSample{payload: payload, at: now}) {
		// Cannot happen: the buffer is drained the moment it fills.
		f.mu.Unlock()
		f.log.Fatalf("raw buffer full outside the drain path")
		return
	}
	var batch []rawSample
	if f.raw.Full() {
		batch = f.raw.Drain()
	}
	f.mu.Unlock()

	if batch == nil {
		return
	}
	pose, ok := f.reduce(batch)
	if !ok {
		return
	}

	f.bb.Lock()
	f.bb.SetFilteredPose(pose)
	f.bb.Unlock()
	f.bb.NotifyAll()

	f.filtered.Push(pose)
	f.log.Debugf("Batch of %d frames reduced: x=%.3f y=%.3f ang=%.3f temp=%.3f",
		len(batch), pose.X, pose.Y, pose.Heading, pose.Temperature)
}

// reduce averages the parseable frames of one batch. Malformed frames and
// frames for another truck are skipped; a batch with no usable frame yields
// no output.
func (f *SensorFilter) reduce(batch []rawSample) (types.FilteredPose, bool) {
	var sumX, sumY, sumAng, sumTemp float64
	var sumNanos int64
	count := 0

	for _, s := range batch {
		var frame types.RawFrame
		if err := json.Unmarshal(s.payload, &frame); err != nil {
			f.log.Debugf("Dropping malformed raw frame: %v", err)
			continue
		}
		if frame.TruckID != "" && frame.TruckID.String() != f.id {
			f.log.Debugf("Dropping frame for truck %s", frame.TruckID)
			continue
		}
		sumX += frame.PosX
		sumY += frame.PosY
		sumAng += frame.Heading
		sumTemp += frame.Temperature
		sumNanos += s.at.UnixNano()
		count++
	}

	if count == 0 {
		return types.FilteredPose{}, false
	}
	n := float64(count)
	return types.FilteredPose{
		X:           round3(sumX / n),
		Y:           round3(sumY / n),
		Heading:     round3(sumAng / n),
		Temperature: round3(sumTemp / n),
		Stamp:       time.Unix(0, sumNanos/int64(count)),
	}, true
}
