package nmeagps

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

// Receiver is a geolocation host backed by a serial NMEA GPS module. Every
// watch opens the port on its own.
type Receiver struct {
	PortName string
	BaudRate uint

	// Open replaces the serial port, mostly for tests.
	Open func() (io.ReadWriteCloser, error)

	mu      sync.Mutex
	nextID  sensors.WatchID
	watches map[sensors.WatchID]*watch
}

type watch struct {
	port    io.Closer
	stop    chan struct{}
	stopped chan struct{}
}

func (r *Receiver) open() (io.ReadWriteCloser, error) {
	if r.Open != nil {
		return r.Open()
	}
	return serial.Open(serial.OpenOptions{
		PortName:        r.PortName,
		BaudRate:        r.BaudRate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,

		// reads return empty every 100ms so a cleared watch is noticed
		InterCharacterTimeout: 100,
		MinimumReadSize:       0,
	})
}

func (r *Receiver) WatchPosition(opts sensors.WatchOptions, onPosition func(sensors.RawPosition), onError func(error)) (sensors.WatchID, error) {
	port, err := r.open()
	if err != nil {
		code := sensors.PositionUnavailable
		if errors.Is(err, os.ErrPermission) {
			code = sensors.PositionPermissionDenied
		}
		return 0, &sensors.PositionError{
			Code:    code,
			Message: errors.Wrapf(err, "failed to open GPS port %s", r.PortName).Error(),
		}
	}
	log.Debugf("GPS serial port %s opened at %d baud", r.PortName, r.BaudRate)

	w := &watch{
		port:    port,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	r.mu.Lock()
	if r.watches == nil {
		r.watches = map[sensors.WatchID]*watch{}
	}
	r.nextID++
	id := r.nextID
	r.watches[id] = w
	r.mu.Unlock()

	go w.read(port, onPosition, onError)
	return id, nil
}

func (w *watch) read(port io.Reader, onPosition func(sensors.RawPosition), onError func(error)) {
	defer close(w.stopped)

	reader := bufio.NewReader(port)
	var dec decoder
	var pending string
	// a receiver without a fix sends a void RMC every second; only the
	// first one of a run is reported
	noFix := false
	for {
		line, err := reader.ReadString('\n')
		line = pending + line
		pending = ""
		if err == io.EOF {
			select {
			case <-w.stop:
				return
			default:
			}
			pending = line
			continue
		}
		if err != nil {
			select {
			case <-w.stop:
			default:
				log.Errorf("GPS read error: %s", err)
				onError(&sensors.PositionError{Code: sensors.PositionUnavailable, Message: err.Error()})
			}
			return
		}

		pos, ok, err := dec.feed(line)
		select {
		case <-w.stop:
			return
		default:
		}
		switch {
		case err == errNoFix:
			if !noFix {
				noFix = true
				onError(err)
			}
		case err != nil:
			onError(err)
		case ok:
			noFix = false
			onPosition(pos)
		}
	}
}

// ClearWatch closes the port of the watch and waits for its reader to
// finish. Unknown ids are ignored.
func (r *Receiver) ClearWatch(id sensors.WatchID) {
	r.mu.Lock()
	w, ok := r.watches[id]
	delete(r.watches, id)
	r.mu.Unlock()
	if !ok {
		return
	}

	close(w.stop)
	if err := w.port.Close(); err != nil {
		log.Errorf("failed to close GPS port: %s", err)
	}
	<-w.stopped
	log.Debugf("GPS watch %d closed", id)
}

// CurrentPosition runs a watch until the first fix arrives.
func (r *Receiver) CurrentPosition(ctx context.Context, opts sensors.WatchOptions) (sensors.RawPosition, error) {
	type result struct {
		pos sensors.RawPosition
		err error
	}
	first := make(chan result, 1)
	deliver := func(res result) {
		select {
		case first <- res:
		default:
		}
	}

	id, err := r.WatchPosition(opts,
		func(pos sensors.RawPosition) { deliver(result{pos: pos}) },
		func(err error) {
			if err == errNoFix {
				return
			}
			deliver(result{err: err})
		})
	if err != nil {
		return sensors.RawPosition{}, err
	}
	defer r.ClearWatch(id)

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-first:
		return res.pos, res.err
	case <-timeout:
		return sensors.RawPosition{}, &sensors.PositionError{Code: sensors.PositionTimeout, Message: "no fix within " + opts.Timeout.String()}
	case <-ctx.Done():
		return sensors.RawPosition{}, ctx.Err()
	}
}
