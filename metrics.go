package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alepar/studysensors/sensors"
)

// metrics to expose to Prometheus
var (
	gaugeLatitude    = newGauge("position_latitude", "Latitude of the last fix (units: degrees)")
	gaugeLongitude   = newGauge("position_longitude", "Longitude of the last fix (units: degrees)")
	gaugeAccuracy    = newGauge("position_accuracy", "Horizontal accuracy of the last fix (units: meters)")
	gaugeSteps       = newGauge("session_steps", "Steps counted since notifications started (units: steps)")
	gaugeTemperature = newGauge("weather_temperature", "Air Temperature (units: degrees Celsius)")
	gaugeHumidity    = newGauge("weather_humidity", "Humidity (units: % of relative Humidity)")
	gaugeClouds      = newGauge("weather_clouds", "Cloud cover (units: %)")
	gaugeWind        = newGauge("weather_wind", "Wind speed (units: m/s)")
	gaugeAqi         = newGauge("air_quality_index", "Air Quality Index (units: 1 good .. 5 very poor)")

	counterLookupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookup_failures_total",
			Help: "Failed remote lookups by kind",
		},
		[]string{"kind"},
	)
)

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"session"},
	)
}

func registerMetrics() {
	prometheus.MustRegister(gaugeLatitude)
	prometheus.MustRegister(gaugeLongitude)
	prometheus.MustRegister(gaugeAccuracy)
	prometheus.MustRegister(gaugeSteps)
	prometheus.MustRegister(gaugeTemperature)
	prometheus.MustRegister(gaugeHumidity)
	prometheus.MustRegister(gaugeClouds)
	prometheus.MustRegister(gaugeWind)
	prometheus.MustRegister(gaugeAqi)
	prometheus.MustRegister(counterLookupFailures)

	// Add Go module build info.
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())
}

// metricsSink mirrors every event into the gauges above.
type metricsSink struct{}

func (metricsSink) Publish(ev sensors.Event) error {
	switch v := ev.Data.(type) {
	case sensors.PositionFix:
		gaugeLatitude.WithLabelValues(ev.Session).Set(v.Coords.Latitude)
		gaugeLongitude.WithLabelValues(ev.Session).Set(v.Coords.Longitude)
		if v.Coords.Accuracy != nil {
			gaugeAccuracy.WithLabelValues(ev.Session).Set(*v.Coords.Accuracy)
		}
	case sensors.StepReading:
		gaugeSteps.WithLabelValues(ev.Session).Set(float64(v.StepCount))
	case sensors.Weather:
		gaugeTemperature.WithLabelValues(ev.Session).Set(v.Temperature)
		gaugeHumidity.WithLabelValues(ev.Session).Set(v.Humidity)
		gaugeClouds.WithLabelValues(ev.Session).Set(v.Clouds)
		gaugeWind.WithLabelValues(ev.Session).Set(v.Wind)
	case sensors.Pollution:
		gaugeAqi.WithLabelValues(ev.Session).Set(float64(v.AQI))
	}
	return nil
}

func countLookupFailure(kind sensors.EventKind, err error) {
	counterLookupFailures.WithLabelValues(string(kind)).Inc()
}
