package pedometer

import (
	"context"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

const baselineUnset = math.MinInt

// Adapter turns cumulative host step counts into per-session counts.
type Adapter struct {
	platform sensors.StepCounterPlatform
	probe    permissionProbe

	baseline int
	running  bool
}

// New picks the permission probe for host once. A nil platform means the
// host cannot count steps.
func New(platform sensors.StepCounterPlatform, host sensors.Platform) *Adapter {
	return &Adapter{
		platform: platform,
		probe:    probeFor(host),
		baseline: baselineUnset,
	}
}

func (a *Adapter) IsAvailable() (bool, error) {
	if a.platform == nil {
		return false, nil
	}
	ok, err := a.platform.IsStepCountingAvailable()
	if err != nil {
		return false, sensors.PlatformFailure("pedometer.IsAvailable", err)
	}
	return ok, nil
}

func (a *Adapter) RequestPermission(ctx context.Context) error {
	if a.platform == nil {
		return sensors.Unavailable("pedometer.RequestPermission", nil)
	}
	return a.probe.probe(ctx, a.platform)
}

// StartNotifications begins a new session, ending any session this adapter
// started before. The first reading of a session is always 1: the baseline
// is taken as one below the first host count.
func (a *Adapter) StartNotifications(onReading func(sensors.StepReading), onError func(error)) error {
	if a.platform == nil {
		return sensors.Unavailable("pedometer.StartNotifications", nil)
	}
	if a.running {
		a.running = false
		if err := a.platform.StopPedometerUpdates(); err != nil {
			log.Errorf("failed to stop previous pedometer session: %s", err)
		}
	}
	a.baseline = baselineUnset

	err := a.platform.StartPedometerUpdates(
		func(raw sensors.RawSteps) {
			onReading(a.adjust(raw))
		},
		func(err error) {
			if onError != nil {
				onError(sensors.PlatformFailure("pedometer.updates", err))
			}
		})
	if err != nil {
		return sensors.PlatformFailure("pedometer.StartNotifications", err)
	}
	a.running = true
	return nil
}

// StopNotifications is a no-op when no session is running.
func (a *Adapter) StopNotifications() error {
	if !a.running {
		return nil
	}
	a.running = false
	if err := a.platform.StopPedometerUpdates(); err != nil {
		return sensors.PlatformFailure("pedometer.StopNotifications", err)
	}
	return nil
}

func (a *Adapter) adjust(raw sensors.RawSteps) sensors.StepReading {
	if a.baseline == baselineUnset {
		a.baseline = raw.NumberOfSteps - 1
		log.Debugf("pedometer baseline set to %d", a.baseline)
	}

	steps := raw.NumberOfSteps - a.baseline
	if steps < 0 {
		// host counter went backwards, e.g. after a reboot
		log.Debugf("pedometer count %d below baseline %d", raw.NumberOfSteps, a.baseline)
		steps = 0
	}

	return sensors.StepReading{
		StepCount:       steps,
		StartDate:       raw.StartDate,
		EndDate:         raw.EndDate,
		Distance:        raw.Distance,
		FloorsAscended:  raw.FloorsAscended,
		FloorsDescended: raw.FloorsDescended,
	}
}
