package probe

import (
	"github.com/pkg/errors"

	"github.com/alepar/studysensors/sensors"
)

// ErrNoPinPlugin is the cause reported when the host has no PIN check.
var ErrNoPinPlugin = errors.New("NO_PIN_PLUGIN")

type Pin struct {
	check sensors.PinCheck
}

func NewPin(check sensors.PinCheck) *Pin {
	return &Pin{check: check}
}

// IsPINSet returns nil when the device is protected by a PIN or passcode.
func (p *Pin) IsPINSet() error {
	if p.check == nil {
		return sensors.Unavailable("probe.IsPINSet", ErrNoPinPlugin)
	}
	if err := p.check.IsPinSetup(); err != nil {
		return sensors.PlatformFailure("probe.IsPINSet", err)
	}
	return nil
}

// Screen forwards keep-awake toggles. The host owns the actual state, so
// repeated calls are passed on unchanged.
type Screen struct {
	host sensors.KeepAwake
}

func NewScreen(host sensors.KeepAwake) *Screen {
	return &Screen{host: host}
}

func (s *Screen) ForbidSleep() error {
	if s.host == nil {
		return sensors.Unavailable("probe.ForbidSleep", nil)
	}
	if err := s.host.KeepAwake(); err != nil {
		return sensors.PlatformFailure("probe.ForbidSleep", err)
	}
	return nil
}

func (s *Screen) AllowSleep() error {
	if s.host == nil {
		return sensors.Unavailable("probe.AllowSleep", nil)
	}
	if err := s.host.AllowSleepAgain(); err != nil {
		return sensors.PlatformFailure("probe.AllowSleep", err)
	}
	return nil
}

func (s *Screen) IsAvailable() bool {
	return s.host != nil
}
