package core

import (
	"context"
	"fmt"
	"sync"

	"haul-truck-service/internal/blackboard"
	"haul-truck-service/internal/config"
	"haul-truck-service/internal/guard"
	"haul-truck-service/internal/logger"
	"haul-truck-service/internal/notifier"
	"haul-truck-service/internal/ring"
	"haul-truck-service/internal/types"
)

// TruckSystem owns the three shared objects and the six tasks. All shared
// objects are created before any task starts and live until process exit;
// tasks keep no heap state visible outside themselves except through them.
type TruckSystem struct {
	cfg *config.Config
	log *logger.Logger
	bus Bus

	bb        *blackboard.Blackboard
	events    *notifier.Notifier
	poses     *syncQueue[types.FilteredPose]
	setpoints *syncQueue[types.NavSetpoints]

	filter     *SensorFilter
	monitor    *FaultMonitor
	planner    *RoutePlanner
	controller *NavController
	command    *CommandLogic
	collector  *DataCollector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTruckSystem(cfg *config.Config, bus Bus, l *logger.Logger) *TruckSystem {
	s := &TruckSystem{
		cfg:       cfg,
		log:       l,
		bus:       bus,
		bb:        blackboard.New(),
		events:    notifier.New(),
		poses:     newSyncQueue[types.FilteredPose](cfg.Filter.FilteredCapacity, ring.Overwrite),
		setpoints: newSyncQueue[types.NavSetpoints](cfg.Planner.SetpointCapacity, ring.Overwrite),
	}

	id := cfg.TruckID
	s.filter = NewSensorFilter(id, cfg.Filter.Window, s.bb, s.poses, l)
	s.monitor = NewFaultMonitor(id, cfg.Fault, s.events, l)
	s.planner = NewRoutePlanner(id, cfg.Planner, bus, s.poses, s.setpoints, l)
	s.controller = NewNavController(cfg.Controller, s.bb, s.setpoints, s.events.Subscribe(), l)
	s.command = NewCommandLogic(id, cfg.Command, bus, s.bb, s.events.Subscribe(), s.controller, l)
	s.collector = NewDataCollector(id, cfg.Collector, cfg.OutDir, s.bb, s.command.LastEvent(), l)

	return s
}

// Start opens the black box, registers every subscription and launches the
// task goroutines. The bus connection itself is established by the caller
// afterwards, so the first connection already carries all subscriptions.
func (s *TruckSystem) Start(ctx context.Context) error {
	guard.Enable(s.cfg.GuardChecks)

	if err := s.collector.Open(); err != nil {
		return fmt.Errorf("starting data collector: %w", err)
	}

	s.filter.Register(s.bus)
	s.monitor.Register(s.bus)
	s.planner.Register(s.bus)
	s.collector.Register(s.bus)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.command.InitFSM(runCtx); err != nil {
		return fmt.Errorf("starting mode machine: %w", err)
	}

	s.spawn("fault-monitor", func() { s.monitor.Run(runCtx) })
	s.spawn("route-planner", func() { s.planner.Run(runCtx) })
	s.spawn("nav-controller", s.controller.Run)
	s.spawn("nav-controller-events", s.controller.RunEvents)
	s.spawn("command-logic", func() { s.command.Run(runCtx) })
	s.spawn("data-collector", func() { s.collector.Run(runCtx) })

	s.log.Infof("Truck %s: tasks started", s.cfg.TruckID)
	return nil
}

func (s *TruckSystem) spawn(name string, run func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run()
		s.log.Debugf("Task %s exited", name)
	}()
}

// Shutdown stops every task and waits for them. The blocking consumers are
// woken by closing the notifier and the queues.
func (s *TruckSystem) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.events.Close()
	s.setpoints.Close()
	s.poses.Close()
	s.wg.Wait()
	if err := s.collector.Close(); err != nil {
		s.log.Warnf("Closing black box: %v", err)
	}
	s.log.Infof("Truck %s: shutdown complete", s.cfg.TruckID)
}

// Blackboard exposes the shared blackboard for the operator UI surface.
func (s *TruckSystem) Blackboard() *blackboard.Blackboard { return s.bb }
