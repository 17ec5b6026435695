package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
	"github.com/alepar/studysensors/sensors/blestep"
	"github.com/alepar/studysensors/sensors/feed"
	"github.com/alepar/studysensors/sensors/geolocation"
	"github.com/alepar/studysensors/sensors/hub"
	"github.com/alepar/studysensors/sensors/lookup"
	"github.com/alepar/studysensors/sensors/mqttsink"
	"github.com/alepar/studysensors/sensors/nmeagps"
	"github.com/alepar/studysensors/sensors/pedometer"
	"github.com/alepar/studysensors/sensors/probe"
)

// CLI args
var (
	listenAddr       = flag.String("listen-address", ":8080", "The address to listen on for HTTP requests.")
	platform         = flag.String("platform", string(sensors.PlatformLinux), "host platform: linux, android or ios")
	gpsPort          = flag.String("gps-port", "", "serial port of the NMEA GPS receiver, empty disables geolocation")
	gpsBaud          = flag.Uint("gps-baud", 9600, "baud rate of the GPS receiver")
	bleAddr          = flag.String("ble-addr", "", "BLE address of the step counter, empty disables the pedometer")
	stepServiceUuid  = flag.String("step-service-uuid", "", "GATT service carrying the step count")
	stepCharUuid     = flag.String("step-char-uuid", "", "GATT characteristic carrying the step count")
	scanDuration     = flag.Duration("scan-dur", 5000*time.Millisecond, "scan duration")
	stepPollInterval = flag.Duration("step-poll-int", blestep.DefaultPollInterval, "time interval between step counter reads")
	retries          = flag.Int("retries", 5, "max number of tries in case of BLE errors")
	lookupInterval   = flag.Duration("lookup-int", 10*time.Minute, "time interval between remote lookups")
	mqttBroker       = flag.String("mqtt-broker", "", "MQTT broker url, empty disables publishing")
	mqttTopicPrefix  = flag.String("mqtt-topic-prefix", "sensors", "prefix of the MQTT topics")
	logLevel         = flag.String("log-level", "info", "log level")
)

func init() {
	registerMetrics()

	//logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("bad log level: %s", err)
	}
	log.SetLevel(level)

	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %s", err)
	}

	var geoHost sensors.GeolocationPlatform
	if *gpsPort != "" {
		geoHost = &nmeagps.Receiver{
			PortName: *gpsPort,
			BaudRate: *gpsBaud,
		}
	}

	var stepHost sensors.StepCounterPlatform
	if *bleAddr != "" {
		// open BLE
		d, err := linux.NewDevice()
		if err != nil {
			log.Fatalf("failed to open ble: %s", err)
		}
		ble.SetDefaultDevice(d)
		defer ble.Stop()

		stepHost = &blestep.Counter{
			Addr:               *bleAddr,
			ServiceUUID:        *stepServiceUuid,
			CharacteristicUUID: *stepCharUuid,
			ScanDuration:       *scanDuration,
			PollInterval:       *stepPollInterval,
			Retries:            *retries,
		}
	}

	lookups := lookup.NewClient(os.Getenv("OPENWEATHER_API_KEY"), os.Getenv("AMBEE_API_KEY"))

	h := hub.New(
		geolocation.New(geoHost),
		pedometer.New(stepHost, sensors.Platform(*platform)),
		lookups,
		// a headless linux host has no screen lock and no device PIN
		probe.NewScreen(nil),
		probe.NewPin(nil),
	)
	h.OnLookupError = countLookupFailure
	h.AddSink(metricsSink{})

	events := feed.New()
	h.AddSink(events)

	if *mqttBroker != "" {
		client, err := mqttsink.Connect(*mqttBroker, "sensorhub-"+uuid.New().String())
		if err != nil {
			log.Fatalf("failed to connect to mqtt broker: %s", err)
		}
		defer client.Disconnect(250)
		sink := mqttsink.New(client, *mqttTopicPrefix)
		defer sink.Close()
		h.AddSink(sink)
	}

	log.Printf("session %s, capabilities %+v", h.Session, h.Capabilities())

	go func() {
		log.Panic(http.ListenAndServe(*listenAddr, newRouter(h, events, prometheus.DefaultGatherer)))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Run(ctx, *lookupInterval); err != nil {
		log.Errorf("sensor hub stopped: %s", err)
	}
}
