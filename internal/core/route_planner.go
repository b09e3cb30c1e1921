package core

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"haul-truck-service/internal/config"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/messaging"
	"haul-truck-service/internal/types"
)

// RoutePlanner holds the current goal from the fleet manager and turns the
// filtered pose into velocity and heading setpoints, once per tick. It also
// reports the pose back to the fleet manager.
type RoutePlanner struct {
	id        string
	topics    messaging.Topics
	bus       Bus
	poses     *syncQueue[types.FilteredPose]
	setpoints *syncQueue[types.NavSetpoints]
	log       *logger.Logger
	cfg       config.PlannerConfig

	mu   sync.Mutex
	goal types.Goal

	// Planner-local; only the Run goroutine touches these.
	lastPose types.FilteredPose
	havePose bool
}

func NewRoutePlanner(
	id string,
	cfg config.PlannerConfig,
	bus Bus,
	poses *syncQueue[types.FilteredPose],
	setpoints *syncQueue[types.NavSetpoints],
	l *logger.Logger,
) *RoutePlanner {
	return &RoutePlanner{
		id:        id,
		topics:    messaging.NewTopics(id),
		bus:       bus,
		poses:     poses,
		setpoints: setpoints,
		log:       l.WithTag("route-planner"),
		cfg:       cfg,
	}
}

// Register subscribes the goal topic.
func (p *RoutePlanner) Register(bus Bus) {
	bus.Subscribe(p.topics.GoalSetpoint(), p.onGoal)
}

func (p *RoutePlanner) onGoal(_ string, payload []byte) {
	var msg types.GoalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.log.Warnf("Dropping malformed goal payload: %v", err)
		return
	}

	p.mu.Lock()
	p.goal = types.Goal{X: msg.X, Y: msg.Y, Active: true}
	p.mu.Unlock()
	p.log.Infof("New destination: x=%.2f y=%.2f", msg.X, msg.Y)
}

func (p *RoutePlanner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Infof("Planner stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *RoutePlanner) tick(ctx context.Context) {
	if pose, ok := p.poses.TryPop(); ok {
		p.lastPose = pose
		p.havePose = true
	}
	if !p.havePose {
		return
	}

	p.publishPose(ctx)
	p.setpoints.Push(p.computeSetpoints())
}

// computeSetpoints implements straight-line goal seeking: proportional
// heading correction, velocity capped at VMax and tapered near the goal.
// With no active goal the truck is commanded to hold still.
func (p *RoutePlanner) computeSetpoints() types.NavSetpoints {
	cur := p.lastPose

	p.mu.Lock()
	goal := p.goal
	p.mu.Unlock()

	if !goal.Active {
		return types.NavSetpoints{Velocity: 0, Heading: cur.Heading}
	}

	dx := goal.X - cur.X
	dy := goal.Y - cur.Y
	dist := math.Sqrt(dx*dx + dy*dy)

	if dist < p.cfg.ArrivalTolerance {
		p.mu.Lock()
		p.goal.Active = false
		p.mu.Unlock()
		p.log.Infof("Goal reached (dist=%.3f), holding position", dist)
		return types.NavSetpoints{Velocity: 0, Heading: cur.Heading}
	}

	desired := math.Atan2(dy, dx) * 180 / math.Pi
	return types.NavSetpoints{
		Velocity: math.Min(p.cfg.VMax, p.cfg.ApproachGain*dist),
		Heading:  cur.Heading + p.cfg.HeadingKp*wrapAngle(desired-cur.Heading),
	}
}

func (p *RoutePlanner) publishPose(ctx context.Context) {
	report := types.PoseReport{
		TruckID: p.id,
		X:       p.lastPose.X,
		Y:       p.lastPose.Y,
		Ang:     p.lastPose.Heading,
	}
	payload, err := json.Marshal(report)
	if err != nil {
		p.log.Errorf("Marshaling pose report: %v", err)
		return
	}
	if err := p.bus.Publish(ctx, p.topics.PoseReport(), 1, payload); err != nil {
		p.log.Warnf("Publishing pose report: %v", err)
	}
}
