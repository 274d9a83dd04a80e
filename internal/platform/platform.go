// Package platform holds the interfaces to the device-side primitives the
// presence core depends on: background region monitoring and the recurring
// background-job scheduler. Both are external collaborators; the local
// implementations here stand in for them in server deployments and tests.
package platform

import (
	"context"
	"errors"

	"github.com/studyhive/roompresence/internal/models"
)

// ErrPermissionDenied is returned by RegionMonitor.Register when the
// underlying location permission has not been granted.
var ErrPermissionDenied = errors.New("location permission not granted")

// RegionMonitor is the platform geofencing primitive. Registration delivers
// asynchronous enter/exit callbacks even while the app is suspended.
type RegionMonitor interface {
	Register(region models.Region) error
	IsRegistered() bool
	Unregister() error
}

// TaskHandler runs one tick of a scheduled background job. A returned error
// marks the tick failed; the scheduler must not stop the job because of it.
type TaskHandler func(ctx context.Context) error

// BackgroundScheduler is the platform background-job scheduler. Jobs are
// invoked on an OS-determined cadence and must tolerate failing ticks.
type BackgroundScheduler interface {
	Register(taskID string, handler TaskHandler) error
	IsRegistered(taskID string) bool
	Unregister(taskID string) error
}
