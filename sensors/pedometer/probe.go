package pedometer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

// HistoryWindow is how far back the history probe queries.
const HistoryWindow = 10 * time.Second

// permissionProbe triggers the host permission prompt. Hosts differ in what
// call does that, so one probe is picked per platform.
type permissionProbe interface {
	probe(ctx context.Context, platform sensors.StepCounterPlatform) error
}

func probeFor(platform sensors.Platform) permissionProbe {
	if platform == sensors.PlatformIOS {
		return historyProbe{window: HistoryWindow, now: time.Now}
	}
	return startStopProbe{}
}

// historyProbe queries recent history; any answer, even an empty one,
// means access is granted.
type historyProbe struct {
	window time.Duration
	now    func() time.Time
}

func (p historyProbe) probe(ctx context.Context, platform sensors.StepCounterPlatform) error {
	const op = "pedometer.RequestPermission"
	history, ok := platform.(sensors.StepHistory)
	if !ok {
		return sensors.Unavailable(op, nil)
	}
	end := p.now()
	if _, err := history.QueryData(ctx, end.Add(-p.window), end); err != nil {
		return sensors.Denied(op, err)
	}
	return nil
}

// startStopProbe starts live updates and stops them again after the first
// reading arrives.
type startStopProbe struct{}

func (startStopProbe) probe(ctx context.Context, platform sensors.StepCounterPlatform) error {
	const op = "pedometer.RequestPermission"

	first := make(chan error, 1)
	err := platform.StartPedometerUpdates(
		func(sensors.RawSteps) {
			select {
			case first <- nil:
			default:
			}
		},
		func(err error) {
			select {
			case first <- err:
			default:
			}
		})
	if err != nil {
		return sensors.Denied(op, err)
	}

	select {
	case err = <-first:
		stopProbeUpdates(platform)
		if err != nil {
			return sensors.Denied(op, err)
		}
		return nil
	case <-ctx.Done():
		stopProbeUpdates(platform)
		return sensors.PlatformFailure(op, ctx.Err())
	}
}

func stopProbeUpdates(platform sensors.StepCounterPlatform) {
	if err := platform.StopPedometerUpdates(); err != nil {
		log.Errorf("failed to stop pedometer updates after permission probe: %s", err)
	}
}
