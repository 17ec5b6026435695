package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/alepar/studysensors/sensors"
	"github.com/alepar/studysensors/sensors/geolocation"
	"github.com/alepar/studysensors/sensors/lookup"
	"github.com/alepar/studysensors/sensors/pedometer"
	"github.com/alepar/studysensors/sensors/probe"
)

type fakeGeo struct {
	mu      sync.Mutex
	onPos   func(sensors.RawPosition)
	cleared int
	denied  bool
}

func (f *fakeGeo) CurrentPosition(ctx context.Context, opts sensors.WatchOptions) (sensors.RawPosition, error) {
	if f.denied {
		return sensors.RawPosition{}, &sensors.PositionError{Code: sensors.PositionPermissionDenied}
	}
	return sensors.RawPosition{}, &sensors.PositionError{Code: sensors.PositionTimeout}
}

func (f *fakeGeo) WatchPosition(opts sensors.WatchOptions, onPosition func(sensors.RawPosition), onError func(error)) (sensors.WatchID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPos = onPosition
	return 7, nil
}

func (f *fakeGeo) ClearWatch(id sensors.WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPos = nil
	f.cleared++
}

func (f *fakeGeo) emit(lat, lon float64) {
	f.mu.Lock()
	cb := f.onPos
	f.mu.Unlock()
	cb(sensors.RawPosition{Latitude: lat, Longitude: lon})
}

type fakeCounter struct {
	available bool
	onData    func(sensors.RawSteps)
	running   bool
	checks    int
	starts    int
	stops     int
}

func (f *fakeCounter) IsStepCountingAvailable() (bool, error) {
	f.checks++
	return f.available, nil
}

func (f *fakeCounter) StartPedometerUpdates(onData func(sensors.RawSteps), onError func(error)) error {
	if f.running {
		return errors.New("step counter updates already running")
	}
	f.running = true
	f.onData = onData
	f.starts++
	if f.starts == 1 {
		// answers the permission probe
		onData(sensors.RawSteps{NumberOfSteps: 1})
	}
	return nil
}

func (f *fakeCounter) StopPedometerUpdates() error {
	f.running = false
	f.stops++
	return nil
}

type fakeScreen struct{ awake, sleep int }

func (f *fakeScreen) KeepAwake() error       { f.awake++; return nil }
func (f *fakeScreen) AllowSleepAgain() error { f.sleep++; return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []sensors.Event
}

func (s *recordingSink) Publish(ev sensors.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) kinds() []sensors.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []sensors.EventKind
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func lookupServer(t *testing.T, failPollen bool) *lookup.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/postcodes"):
			_, _ = w.Write([]byte(`{"result":[{"postcode":"21432"}]}`))
		case strings.HasSuffix(r.URL.Path, "/weather"):
			_, _ = w.Write([]byte(`{"name":"Malmo","weather":[{"description":"mist","icon":"50d"}],"main":{"temp":280.15,"humidity":90},"clouds":{"all":75},"wind":{"speed":4.1}}`))
		case strings.HasSuffix(r.URL.Path, "/air_pollution"):
			_, _ = w.Write([]byte(`{"list":[{"main":{"aqi":1}}]}`))
		case strings.HasSuffix(r.URL.Path, "/pollen"):
			if failPollen {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"Risk":{"grass_pollen":"Low"},"Species":{}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := lookup.NewClient("k", "k")
	c.PostcodeURL = srv.URL + "/postcodes"
	c.WeatherURL = srv.URL + "/weather"
	c.PollutionURL = srv.URL + "/air_pollution"
	c.PollenURL = srv.URL + "/pollen"
	c.HTTPClient = srv.Client()
	return c
}

type fixture struct {
	hub    *Hub
	geo    *fakeGeo
	steps  *fakeCounter
	screen *fakeScreen
	sink   *recordingSink
}

func newFixture(t *testing.T, failPollen bool) *fixture {
	f := &fixture{
		geo:    &fakeGeo{},
		steps:  &fakeCounter{available: true},
		screen: &fakeScreen{},
		sink:   &recordingSink{},
	}
	f.hub = New(
		geolocation.New(f.geo),
		pedometer.New(f.steps, sensors.PlatformAndroid),
		lookupServer(t, failPollen),
		probe.NewScreen(f.screen),
		probe.NewPin(nil),
	)
	f.hub.AddSink(f.sink)
	return f
}

func TestStartStreamsAndPublishes(t *testing.T) {
	f := newFixture(t, false)
	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.screen.awake != 1 {
		t.Fatalf("screen not kept awake")
	}

	f.geo.emit(55.6, 13.0)
	f.steps.onData(sensors.RawSteps{NumberOfSteps: 40})
	f.steps.onData(sensors.RawSteps{NumberOfSteps: 45})

	fix, ok := f.hub.LastFix()
	if !ok || fix.Coords.Latitude != 55.6 {
		t.Fatalf("LastFix = %+v, %v", fix, ok)
	}
	steps, ok := f.hub.LastSteps()
	if !ok || steps.StepCount != 6 {
		t.Fatalf("LastSteps = %+v, %v", steps, ok)
	}

	kinds := f.sink.kinds()
	want := []sensors.EventKind{sensors.EventPosition, sensors.EventSteps, sensors.EventSteps}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	for _, ev := range f.sink.events {
		if ev.Session != f.hub.Session || ev.Session == "" {
			t.Fatalf("event session = %q, hub session = %q", ev.Session, f.hub.Session)
		}
	}

	if err := f.hub.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f.geo.cleared != 1 || f.screen.sleep != 1 {
		t.Fatalf("cleared=%d sleep=%d", f.geo.cleared, f.screen.sleep)
	}
}

func TestStartWithDeniedGeolocation(t *testing.T) {
	f := newFixture(t, false)
	f.geo.denied = true
	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.geo.onPos != nil {
		t.Fatal("geolocation watch started despite denial")
	}
	if f.steps.onData == nil {
		t.Fatal("pedometer not started")
	}
}

func TestStartWithoutAnySensor(t *testing.T) {
	h := New(geolocation.New(nil), pedometer.New(nil, sensors.PlatformLinux), lookup.NewClient("", ""), probe.NewScreen(nil), probe.NewPin(nil))
	if err := h.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded without sensors")
	}
}

func TestRefreshLookups(t *testing.T) {
	f := newFixture(t, false)

	if err := f.hub.RefreshLookups(context.Background()); err != nil {
		t.Fatalf("RefreshLookups without fix: %v", err)
	}
	if len(f.sink.kinds()) != 0 {
		t.Fatalf("lookups ran without a fix")
	}

	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.geo.emit(55.6, 13.0)
	if err := f.hub.RefreshLookups(context.Background()); err != nil {
		t.Fatalf("RefreshLookups: %v", err)
	}

	var weather sensors.Weather
	var postcode sensors.Postcode
	for _, ev := range f.sink.events {
		switch ev.Kind {
		case sensors.EventWeather:
			weather = ev.Data.(sensors.Weather)
		case sensors.EventPostcode:
			postcode = ev.Data.(sensors.Postcode)
		}
	}
	if postcode.Postcode != "21432" {
		t.Fatalf("postcode = %+v", postcode)
	}
	if weather.Temperature != 7.0 || weather.Location != "Malmo" {
		t.Fatalf("weather = %+v", weather)
	}
}

func TestRefreshLookupsPartialFailure(t *testing.T) {
	f := newFixture(t, true)
	var failedKinds []sensors.EventKind
	f.hub.OnLookupError = func(kind sensors.EventKind, err error) {
		failedKinds = append(failedKinds, kind)
	}
	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.geo.emit(55.6, 13.0)

	err := f.hub.RefreshLookups(context.Background())
	if !errors.Is(err, sensors.LookupError) {
		t.Fatalf("err = %v, want LookupError", err)
	}
	if len(failedKinds) != 1 || failedKinds[0] != sensors.EventPollen {
		t.Fatalf("failed kinds = %v", failedKinds)
	}

	published := map[sensors.EventKind]bool{}
	for _, k := range f.sink.kinds() {
		published[k] = true
	}
	if !published[sensors.EventPostcode] || !published[sensors.EventWeather] || !published[sensors.EventPollution] || published[sensors.EventPollen] {
		t.Fatalf("published = %v", published)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.hub.Run(ctx, time.Hour) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if f.steps.stops == 0 {
		t.Fatal("pedometer not stopped")
	}
}

func TestCapabilities(t *testing.T) {
	f := newFixture(t, false)
	c := f.hub.Capabilities()
	if !c.Geolocation || !c.Pedometer || !c.KeepAwake || c.PinCheck {
		t.Fatalf("capabilities = %+v", c)
	}
}

func TestCapabilitiesSurveyedOnce(t *testing.T) {
	f := newFixture(t, false)
	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer f.hub.Stop()

	for i := 0; i < 3; i++ {
		if c := f.hub.Capabilities(); !c.Pedometer {
			t.Fatalf("pedometer reported unavailable while running: %+v", c)
		}
	}
	if f.steps.checks != 1 {
		t.Fatalf("step counter availability checked %d times, want 1", f.steps.checks)
	}
}

func TestFixLossLoggedAtDebug(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	noFix := &sensors.PositionError{Code: sensors.PositionUnavailable, Message: "receiver has no satellite fix"}
	logPositionError(sensors.ClassifyPosition("geolocation.watch", noFix))
	if e := hook.LastEntry(); e == nil || e.Level != log.DebugLevel {
		t.Fatalf("no-fix entry = %+v, want debug", e)
	}

	denied := &sensors.PositionError{Code: sensors.PositionPermissionDenied}
	logPositionError(sensors.ClassifyPosition("geolocation.watch", denied))
	if e := hook.LastEntry(); e == nil || e.Level != log.ErrorLevel {
		t.Fatalf("denied entry = %+v, want error", e)
	}
}

func TestStartWithoutScreenOrPinHost(t *testing.T) {
	geo := &fakeGeo{}
	h := New(geolocation.New(geo), pedometer.New(nil, sensors.PlatformLinux), lookup.NewClient("", ""), probe.NewScreen(nil), probe.NewPin(nil))
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c := h.Capabilities(); !c.Geolocation || c.KeepAwake || c.PinCheck || c.PinSet {
		t.Fatalf("capabilities = %+v", c)
	}
}
