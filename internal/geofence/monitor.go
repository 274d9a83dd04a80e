package geofence

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/studyhive/roompresence/internal/models"
	"github.com/studyhive/roompresence/internal/platform"
	"github.com/studyhive/roompresence/pkg/logger"
)

// Monitor wraps the platform region-monitoring primitive around a tri-state
// "last known side" cell. The cell has a single writer (HandleEvent) and any
// number of polling readers, so reads are lock-free snapshots.
type Monitor struct {
	rm platform.RegionMonitor
	l  logger.Logger

	side atomic.Int32

	mu   sync.Mutex
	subs map[chan models.GeofenceEvent]struct{}
}

func NewMonitor(rm platform.RegionMonitor, l logger.Logger) *Monitor {
	return &Monitor{
		rm:   rm,
		l:    l,
		subs: make(map[chan models.GeofenceEvent]struct{}),
	}
}

// Arm registers the region for monitoring. Re-arming while already armed is
// a no-op and keeps the current side; only a fresh arm resets it to Unknown.
// A permission refusal surfaces platform.ErrPermissionDenied and leaves the
// monitor disarmed.
func (m *Monitor) Arm(ctx context.Context, region models.Region) error {
	if m.rm.IsRegistered() {
		m.l.Debugf(ctx, "Geofence already armed - region: %s", region.Identifier)
		return nil
	}

	if err := m.rm.Register(region); err != nil {
		m.l.Warnf(ctx, "Failed to arm geofence - region: %s, error: %v", region.Identifier, err)
		return err
	}

	m.side.Store(int32(models.SideUnknown))

	m.l.Infof(ctx, "Geofence armed - region: %s, radius_m: %.0f", region.Identifier, region.RadiusMeters)
	return nil
}

// Disarm unregisters monitoring. Safe to call when not armed.
func (m *Monitor) Disarm(ctx context.Context) error {
	if !m.rm.IsRegistered() {
		return nil
	}

	if err := m.rm.Unregister(); err != nil {
		m.l.Errorf(ctx, "Failed to disarm geofence: %v", err)
		return err
	}

	m.l.Info(ctx, "Geofence disarmed")
	return nil
}

// Armed reports whether the region is currently registered.
func (m *Monitor) Armed() bool {
	return m.rm.IsRegistered()
}

// Side returns the last confirmed side of the region.
func (m *Monitor) Side() models.GeofenceSide {
	return models.GeofenceSide(m.side.Load())
}

// HandleEvent is the platform boundary-crossing callback. It updates the
// side cell and fans the event out to subscribers. With no subscribers the
// event is dropped; the side update still happens.
func (m *Monitor) HandleEvent(ctx context.Context, evt models.GeofenceEvent) {
	switch evt.Type {
	case models.GeofenceEnter:
		m.side.Store(int32(models.SideInside))
	case models.GeofenceExit:
		m.side.Store(int32(models.SideOutside))
	default:
		m.l.Warnf(ctx, "Ignoring unknown geofence event type: %q", evt.Type)
		return
	}

	m.l.Infof(ctx, "Geofence event - type: %s, region: %s", evt.Type, evt.Region.Identifier)

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- evt:
		default:
			m.l.Warn(ctx, "Dropping geofence event for slow subscriber")
		}
	}
}

// Subscribe returns a channel receiving future geofence events.
func (m *Monitor) Subscribe() chan models.GeofenceEvent {
	ch := make(chan models.GeofenceEvent, 8)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[ch] = struct{}{}

	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (m *Monitor) Unsubscribe(ch chan models.GeofenceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}
