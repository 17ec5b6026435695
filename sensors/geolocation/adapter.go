package geolocation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

// PermissionTimeout bounds the position request used as a permission probe.
const PermissionTimeout = 2000 * time.Millisecond

// Adapter turns a host geolocation primitive into a stream of PositionFix.
// It owns at most one watch at a time.
type Adapter struct {
	// Now stamps every fix. Defaults to time.Now.
	Now func() time.Time

	platform sensors.GeolocationPlatform
	watchID  sensors.WatchID
	watching bool
}

// New returns an adapter over platform. A nil platform means the host has
// no geolocation capability.
func New(platform sensors.GeolocationPlatform) *Adapter {
	return &Adapter{
		Now:      time.Now,
		platform: platform,
	}
}

func (a *Adapter) IsAvailable() bool {
	return a.platform != nil
}

// RequestPermission asks the host for one position. Only an explicit
// permission refusal fails the call; timeouts and missing fixes mean the
// permission prompt has already been answered.
func (a *Adapter) RequestPermission(ctx context.Context) error {
	if a.platform == nil {
		return sensors.Unavailable("geolocation.RequestPermission", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, PermissionTimeout)
	defer cancel()

	_, err := a.platform.CurrentPosition(ctx, sensors.WatchOptions{Timeout: PermissionTimeout})
	if err == nil {
		return nil
	}
	if sensors.IsPermissionDenied(err) {
		return sensors.Denied("geolocation.RequestPermission", err)
	}
	log.Debugf("geolocation permission probe failed without a denial, assuming granted: %s", err)
	return nil
}

// StartNotifications replaces any watch started earlier by this adapter.
// onFix runs on the host's callback goroutine, once per host fix.
func (a *Adapter) StartNotifications(opts sensors.WatchOptions, onFix func(sensors.PositionFix), onError func(error)) error {
	if a.platform == nil {
		return sensors.Unavailable("geolocation.StartNotifications", nil)
	}
	a.clearWatch()

	id, err := a.platform.WatchPosition(opts,
		func(raw sensors.RawPosition) {
			onFix(a.normalize(raw))
		},
		func(err error) {
			if onError != nil {
				onError(sensors.ClassifyPosition("geolocation.watch", err))
			}
		})
	if err != nil {
		return sensors.ClassifyPosition("geolocation.StartNotifications", err)
	}

	a.watchID = id
	a.watching = true
	log.Debugf("geolocation watch %d started", id)
	return nil
}

// StopNotifications never fails; without an active watch it does nothing.
func (a *Adapter) StopNotifications() error {
	a.clearWatch()
	return nil
}

func (a *Adapter) GetCurrentPosition(ctx context.Context) (sensors.PositionFix, error) {
	if a.platform == nil {
		return sensors.PositionFix{}, sensors.Unavailable("geolocation.GetCurrentPosition", nil)
	}
	raw, err := a.platform.CurrentPosition(ctx, sensors.WatchOptions{})
	if err != nil {
		return sensors.PositionFix{}, sensors.ClassifyPosition("geolocation.GetCurrentPosition", err)
	}
	return a.normalize(raw), nil
}

func (a *Adapter) clearWatch() {
	if !a.watching {
		return
	}
	a.platform.ClearWatch(a.watchID)
	log.Debugf("geolocation watch %d cleared", a.watchID)
	a.watching = false
}

// normalize copies raw field by field. The host timestamp is dropped in
// favour of the local clock.
func (a *Adapter) normalize(raw sensors.RawPosition) sensors.PositionFix {
	return sensors.PositionFix{
		Timestamp: a.Now().UnixNano() / int64(time.Millisecond),
		Coords: sensors.Coords{
			Latitude:         raw.Latitude,
			Longitude:        raw.Longitude,
			Altitude:         copyFloat(raw.Altitude),
			Accuracy:         copyFloat(raw.Accuracy),
			AltitudeAccuracy: copyFloat(raw.AltitudeAccuracy),
			Heading:          copyFloat(raw.Heading),
			Speed:            copyFloat(raw.Speed),
		},
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
