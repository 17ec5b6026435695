package nmeagps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/alepar/studysensors/sensors"
)

// errNoFix is reported for every void RMC while the receiver acquires
// satellites.
var errNoFix = &sensors.PositionError{
	Code:    sensors.PositionUnavailable,
	Message: "receiver has no satellite fix",
}

// units: m/s per knot
const metersPerSecondPerKnot = 0.514444

// decoder folds NMEA sentences into positions. RMC carries position,
// speed and course; GGA only refreshes the altitude used by the next RMC.
type decoder struct {
	altitude *float64
}

// feed parses one line. It reports a position for every valid RMC sentence
// and a PositionError for a void one; other lines yield nothing.
func (d *decoder) feed(line string) (sensors.RawPosition, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return sensors.RawPosition{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// partial sentences are normal right after the port opens
		return sensors.RawPosition{}, false, nil
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			d.altitude = nil
		} else {
			alt := m.Altitude
			d.altitude = &alt
		}
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return sensors.RawPosition{}, false, errNoFix
		}
		return d.refineRMC(m), true, nil
	}
	return sensors.RawPosition{}, false, nil
}

func (d *decoder) refineRMC(m nmea.RMC) sensors.RawPosition {
	speed := m.Speed * metersPerSecondPerKnot
	heading := m.Course
	pos := sensors.RawPosition{
		Timestamp: fixTime(m.Date, m.Time),
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Heading:   &heading,
		Speed:     &speed,
	}
	if d.altitude != nil {
		alt := *d.altitude
		pos.Altitude = &alt
	}
	return pos
}

// fixTime is the receiver's own idea of the fix time. Two-digit years from
// 80 on are taken as 19xx.
func fixTime(date nmea.Date, t nmea.Time) time.Time {
	if !date.Valid || !t.Valid {
		return time.Time{}
	}
	year := 2000 + date.YY
	if date.YY >= 80 {
		year = 1900 + date.YY
	}
	return time.Date(year, time.Month(date.MM), date.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
