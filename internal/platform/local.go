package platform

import (
	"context"
	"sync"
	"time"

	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/pkg/logger"
)

// LocalRegionMonitor tracks registration state in-process. Boundary crossings
// are reported by whatever feeds the geofence monitor (the HTTP ingress in
// the server, scripted movement in the simulator), so registration here only
// gates whether events are being accepted.
type LocalRegionMonitor struct {
	mu         sync.Mutex
	registered bool
	region     models.Region
	granted    bool
}

func NewLocalRegionMonitor(permissionGranted bool) *LocalRegionMonitor {
	return &LocalRegionMonitor{granted: permissionGranted}
}

func (m *LocalRegionMonitor) Register(region models.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.granted {
		return ErrPermissionDenied
	}

	m.registered = true
	m.region = region
	return nil
}

func (m *LocalRegionMonitor) IsRegistered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

func (m *LocalRegionMonitor) Unregister() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = false
	return nil
}

// Region returns the currently registered region.
func (m *LocalRegionMonitor) Region() models.Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.region
}

type scheduledTask struct {
	stop   chan struct{}
	ticker *time.Ticker
}

// TickerScheduler runs registered tasks on a fixed interval. It is the
// server-side stand-in for the OS background scheduler: tick failures are
// logged and the task keeps its schedule.
type TickerScheduler struct {
	interval time.Duration
	l        logger.Logger

	mu    sync.Mutex
	tasks map[string]*scheduledTask
	wg    sync.WaitGroup
}

func NewTickerScheduler(interval time.Duration, l logger.Logger) *TickerScheduler {
	return &TickerScheduler{
		interval: interval,
		l:        l,
		tasks:    make(map[string]*scheduledTask),
	}
}

func (s *TickerScheduler) Register(taskID string, handler TaskHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return nil
	}

	t := &scheduledTask{
		stop:   make(chan struct{}),
		ticker: time.NewTicker(s.interval),
	}
	s.tasks[taskID] = t

	s.wg.Add(1)
	go s.run(taskID, t, handler)

	return nil
}

func (s *TickerScheduler) run(taskID string, t *scheduledTask, handler TaskHandler) {
	defer s.wg.Done()

	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := handler(ctx); err != nil {
				s.l.Warnf(ctx, "Background task tick failed - task_id: %s, error: %v", taskID, err)
			}
			cancel()
		}
	}
}

func (s *TickerScheduler) IsRegistered(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[taskID]
	return ok
}

func (s *TickerScheduler) Unregister(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil
	}

	t.ticker.Stop()
	close(t.stop)
	delete(s.tasks, taskID)
	return nil
}

// Shutdown cancels every scheduled task and waits for running ticks.
func (s *TickerScheduler) Shutdown() {
	s.mu.Lock()
	for id, t := range s.tasks {
		t.ticker.Stop()
		close(t.stop)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
