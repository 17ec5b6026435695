package blestep

import (
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

const DefaultPollInterval = 10 * time.Second

// Counter is a step-counting host backed by a BLE peripheral exposing its
// cumulative step count as a little-endian uint32 characteristic.
type Counter struct {
	Addr               string
	ServiceUUID        string
	CharacteristicUUID string
	ScanDuration       time.Duration
	PollInterval       time.Duration
	Retries            int

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func (counter *Counter) IsStepCountingAvailable() (bool, error) {
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), counter.ScanDuration))
	ads, err := ble.Find(ctx, false, counter.addrFilter)
	if err != nil {
		switch errors.Cause(err) {
		case context.DeadlineExceeded:
		case context.Canceled:
			return false, errors.Wrap(err, "scan for step counter cancelled")
		default:
			return false, errors.Wrap(err, "failed to scan for step counter")
		}
	}
	return len(ads) > 0, nil
}

func (counter *Counter) addrFilter(a ble.Advertisement) bool {
	return strings.ToUpper(a.Addr().String()) == strings.ToUpper(counter.Addr)
}

func (counter *Counter) StartPedometerUpdates(onData func(sensors.RawSteps), onError func(error)) error {
	counter.mu.Lock()
	defer counter.mu.Unlock()
	if counter.stop != nil {
		return errors.New("step counter updates already running")
	}

	serviceUuid, err := ble.Parse(counter.ServiceUUID)
	if err != nil {
		return errors.Wrap(err, "could not parse service uuid")
	}
	charUuid, err := ble.Parse(counter.CharacteristicUUID)
	if err != nil {
		return errors.Wrap(err, "could not parse characteristic uuid")
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	counter.stop, counter.stopped = stop, stopped

	go func() {
		defer close(stopped)
		started := time.Now()
		interval := counter.PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			steps, err := counter.receive(serviceUuid, charUuid)
			select {
			case <-stop:
				return
			default:
			}
			if err != nil {
				onError(err)
			} else {
				onData(sensors.RawSteps{NumberOfSteps: steps, StartDate: started, EndDate: time.Now()})
			}

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// StopPedometerUpdates waits for an in-flight read to finish. It does
// nothing when updates are not running.
func (counter *Counter) StopPedometerUpdates() error {
	counter.mu.Lock()
	stop, stopped := counter.stop, counter.stopped
	counter.stop, counter.stopped = nil, nil
	counter.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

func (counter *Counter) receive(serviceUuid, charUuid ble.UUID) (int, error) {
	var lastErr error
	retries := counter.Retries
	if retries < 1 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		var steps int
		steps, lastErr = counter.read(serviceUuid, charUuid)
		if lastErr == nil {
			return steps, nil
		}
		if i < retries-1 {
			log.Errorf("retrying error in step counter read: %s", lastErr)
			time.Sleep(counter.ScanDuration)
		}
	}
	return 0, errors.Wrap(lastErr, "all retries to read step count failed")
}

func (counter *Counter) read(serviceUuid, charUuid ble.UUID) (int, error) {
	log.Debugf("connecting to step counter %s", counter.Addr)
	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), counter.ScanDuration))
	cln, err := ble.Connect(ctx, counter.addrFilter)
	if err != nil {
		return 0, errors.Wrap(err, "couldn't connect to ble")
	}

	// the peripheral may drop the link on its own, so wait for the
	// disconnect before returning
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		log.Debugf("step counter disconnected")
		close(done)
	}()
	defer func() {
		_ = cln.CancelConnection()
		<-done
	}()

	services, err := cln.DiscoverServices([]ble.UUID{serviceUuid})
	if err != nil {
		return 0, errors.Wrap(err, "couldn't discover services")
	}
	if len(services) == 0 {
		return 0, errors.New("did not find step counter service")
	}

	characteristics, err := cln.DiscoverCharacteristics([]ble.UUID{charUuid}, services[0])
	if err != nil {
		return 0, errors.Wrap(err, "couldn't discover characteristic")
	}
	if len(characteristics) == 0 {
		return 0, errors.New("did not find step count characteristic")
	}

	value, err := cln.ReadCharacteristic(characteristics[0])
	if err != nil {
		return 0, errors.Wrap(err, "failed to read characteristic value")
	}
	return decodeStepCount(value)
}

func decodeStepCount(value []byte) (int, error) {
	if len(value) < 4 {
		return 0, errors.Errorf("step count payload too short: %d bytes", len(value))
	}
	return int(binary.LittleEndian.Uint32(value)), nil
}
