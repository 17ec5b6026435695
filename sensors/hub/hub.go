package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
	"github.com/alepar/studysensors/sensors/geolocation"
	"github.com/alepar/studysensors/sensors/lookup"
	"github.com/alepar/studysensors/sensors/pedometer"
	"github.com/alepar/studysensors/sensors/probe"
)

type Sink interface {
	Publish(ev sensors.Event) error
}

// Hub runs both sensor streams, refreshes the remote lookups at the latest
// fix and fans every normalized value out to the sinks.
type Hub struct {
	Session string
	Watch   sensors.WatchOptions

	// OnLookupError is told about every failed lookup.
	OnLookupError func(kind sensors.EventKind, err error)

	geo     *geolocation.Adapter
	steps   *pedometer.Adapter
	lookups *lookup.Client
	screen  *probe.Screen
	pin     *probe.Pin

	mu        sync.RWMutex
	sinks     []Sink
	lastFix   *sensors.PositionFix
	lastSteps *sensors.StepReading

	surveyMu sync.Mutex
	caps     *probe.Capabilities
}

func New(geo *geolocation.Adapter, steps *pedometer.Adapter, lookups *lookup.Client, screen *probe.Screen, pin *probe.Pin) *Hub {
	return &Hub{
		Session: uuid.New().String(),
		Watch:   sensors.WatchOptions{EnableHighAccuracy: true},
		geo:     geo,
		steps:   steps,
		lookups: lookups,
		screen:  screen,
		pin:     pin,
	}
}

func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Capabilities surveys the host on first use and returns that survey from
// then on. Availability checks may scan the radio the step counter polls
// over, so they never run next to a live stream.
func (h *Hub) Capabilities() probe.Capabilities {
	h.surveyMu.Lock()
	defer h.surveyMu.Unlock()
	if h.caps == nil {
		caps := probe.Survey(h.geo, h.steps, h.screen, h.pin)
		h.caps = &caps
	}
	return *h.caps
}

func (h *Hub) LastFix() (sensors.PositionFix, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastFix == nil {
		return sensors.PositionFix{}, false
	}
	return *h.lastFix, true
}

func (h *Hub) LastSteps() (sensors.StepReading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastSteps == nil {
		return sensors.StepReading{}, false
	}
	return *h.lastSteps, true
}

// Start asks for permissions and starts every stream the host supports. It
// fails only when no stream could be started at all.
func (h *Hub) Start(ctx context.Context) error {
	caps := h.Capabilities()

	geoErr := h.startGeolocation(ctx)
	if geoErr != nil {
		log.Errorf("geolocation not started: %s", geoErr)
	}
	stepsErr := h.startPedometer(ctx, caps.Pedometer)
	if stepsErr != nil {
		log.Errorf("pedometer not started: %s", stepsErr)
	}
	if geoErr != nil && stepsErr != nil {
		return errors.New("no sensor stream could be started")
	}

	if err := h.screen.ForbidSleep(); err != nil {
		log.Debugf("screen keep-awake not set: %s", err)
	}
	return nil
}

func (h *Hub) startGeolocation(ctx context.Context) error {
	if !h.geo.IsAvailable() {
		return sensors.Unavailable("hub.startGeolocation", nil)
	}
	if err := h.geo.RequestPermission(ctx); err != nil {
		return err
	}
	return h.geo.StartNotifications(h.Watch, h.onFix, logPositionError)
}

func logPositionError(err error) {
	var perr *sensors.PositionError
	if errors.As(err, &perr) && perr.Code == sensors.PositionUnavailable {
		log.Debugf("geolocation: %s", err)
		return
	}
	log.Errorf("geolocation: %s", err)
}

func (h *Hub) startPedometer(ctx context.Context, available bool) error {
	if !available {
		return sensors.Unavailable("hub.startPedometer", nil)
	}
	if err := h.steps.RequestPermission(ctx); err != nil {
		return err
	}
	return h.steps.StartNotifications(h.onSteps, func(err error) {
		log.Errorf("pedometer: %s", err)
	})
}

// Stop ends both streams and lets the screen sleep again.
func (h *Hub) Stop() error {
	_ = h.geo.StopNotifications()
	err := h.steps.StopNotifications()
	if serr := h.screen.AllowSleep(); serr != nil {
		log.Debugf("screen sleep not restored: %s", serr)
	}
	return err
}

func (h *Hub) onFix(fix sensors.PositionFix) {
	h.mu.Lock()
	h.lastFix = &fix
	h.mu.Unlock()
	h.publish(sensors.EventPosition, fix)
}

func (h *Hub) onSteps(r sensors.StepReading) {
	h.mu.Lock()
	h.lastSteps = &r
	h.mu.Unlock()
	h.publish(sensors.EventSteps, r)
}

func (h *Hub) publish(kind sensors.EventKind, data interface{}) {
	h.mu.RLock()
	sinks := make([]Sink, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.RUnlock()

	ev := sensors.Event{Session: h.Session, Kind: kind, Data: data}
	for _, s := range sinks {
		if err := s.Publish(ev); err != nil {
			log.Errorf("failed to publish %s event: %s", kind, err)
		}
	}
}

// RefreshLookups runs every lookup once at the latest fix. Successful
// results are published even when others fail; the first failure is
// returned.
func (h *Hub) RefreshLookups(ctx context.Context) error {
	fix, ok := h.LastFix()
	if !ok {
		log.Debugf("no fix yet, skipping lookups")
		return nil
	}

	lookups := []struct {
		kind sensors.EventKind
		run  func() (interface{}, error)
	}{
		{sensors.EventPostcode, func() (interface{}, error) { return h.lookups.Postcode(ctx, fix) }},
		{sensors.EventWeather, func() (interface{}, error) { return h.lookups.Weather(ctx, fix) }},
		{sensors.EventPollution, func() (interface{}, error) { return h.lookups.Pollution(ctx, fix) }},
		{sensors.EventPollen, func() (interface{}, error) { return h.lookups.Pollen(ctx, fix) }},
	}

	var first error
	failed := 0
	for _, l := range lookups {
		v, err := l.run()
		if err != nil {
			failed++
			log.Errorf("%s lookup failed: %s", l.kind, err)
			if h.OnLookupError != nil {
				h.OnLookupError(l.kind, err)
			}
			if first == nil {
				first = err
			}
			continue
		}
		h.publish(l.kind, v)
	}
	if first != nil {
		return errors.Wrapf(first, "%d of %d lookups failed", failed, len(lookups))
	}
	return nil
}

// Run starts the streams, refreshes lookups every interval and stops the
// streams once ctx ends.
func (h *Hub) Run(ctx context.Context, interval time.Duration) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := h.Stop(); err != nil {
			log.Errorf("failed to stop sensors: %s", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = h.RefreshLookups(ctx)
		}
	}
}
