package sensors

import (
	"context"
	"fmt"
	"time"
)

// Platform identifies the host the adapters run on. The host application
// supplies it; adapters never probe for it themselves.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformLinux   Platform = "linux"
)

type WatchOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

type WatchID int

type PositionErrorCode int

// Codes as reported by W3C-style geolocation hosts.
const (
	PositionPermissionDenied PositionErrorCode = 1
	PositionUnavailable      PositionErrorCode = 2
	PositionTimeout          PositionErrorCode = 3
)

type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
}

type GeolocationPlatform interface {
	CurrentPosition(ctx context.Context, opts WatchOptions) (RawPosition, error)

	// WatchPosition keeps calling onPosition for every new fix until the
	// returned id is cleared.
	WatchPosition(opts WatchOptions, onPosition func(RawPosition), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
}

type StepCounterPlatform interface {
	IsStepCountingAvailable() (bool, error)

	// StartPedometerUpdates reports the cumulative step count since the
	// updates were started or, on some hosts, since boot.
	StartPedometerUpdates(onData func(RawSteps), onError func(error)) error
	StopPedometerUpdates() error
}

// StepHistory is implemented by hosts that keep a queryable step log.
type StepHistory interface {
	QueryData(ctx context.Context, start, end time.Time) (RawSteps, error)
}

type KeepAwake interface {
	KeepAwake() error
	AllowSleepAgain() error
}

type PinCheck interface {
	// IsPinSetup returns nil when a PIN, passcode or pattern lock is set.
	IsPinSetup() error
}
