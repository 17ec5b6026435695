package probe

import (
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

type geolocationProbe interface {
	IsAvailable() bool
}

type pedometerProbe interface {
	IsAvailable() (bool, error)
}

// Capabilities is a snapshot of what the host can do.
type Capabilities struct {
	Geolocation bool `json:"geolocation"`
	Pedometer   bool `json:"pedometer"`
	KeepAwake   bool `json:"keepAwake"`
	PinSet      bool `json:"pinSet"`
	PinCheck    bool `json:"pinCheck"`
}

// Survey asks every probe once. Failures count as "not available" and are
// logged, never returned.
func Survey(geo geolocationProbe, ped pedometerProbe, screen *Screen, pin *Pin) Capabilities {
	var c Capabilities

	c.Geolocation = geo.IsAvailable()

	ok, err := ped.IsAvailable()
	if err != nil {
		log.Errorf("pedometer availability check failed: %s", err)
	}
	c.Pedometer = ok

	c.KeepAwake = screen.IsAvailable()

	err = pin.IsPINSet()
	switch sensors.KindOf(err) {
	case "":
		c.PinCheck, c.PinSet = true, true
	case sensors.CapabilityUnavailable:
	default:
		c.PinCheck = true
		log.Debugf("no device PIN: %s", err)
	}

	return c
}
