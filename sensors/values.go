package sensors

import "time"

type PositionFix struct {
	// units: ms since unix epoch, taken when the fix was received locally
	Timestamp int64  `json:"timestamp"`
	Coords    Coords `json:"coords"`
}

type Coords struct {
	// units: decimal degrees
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// units: meters above the WGS84 ellipsoid
	Altitude *float64 `json:"altitude"`

	// units: meters
	Accuracy         *float64 `json:"accuracy,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`

	// units: degrees clockwise from true north
	Heading *float64 `json:"heading,omitempty"`

	// units: m/s
	Speed *float64 `json:"speed,omitempty"`
}

// RawPosition is a fix as handed over by the host. It is never given to
// callers directly: some hosts hand out objects that do not survive
// serialisation, and their clocks are not trusted.
type RawPosition struct {
	Timestamp        time.Time
	Latitude         float64
	Longitude        float64
	Altitude         *float64
	Accuracy         *float64
	AltitudeAccuracy *float64
	Heading          *float64
	Speed            *float64
}

type StepReading struct {
	// steps since the stream was started, never negative
	StepCount int `json:"numberOfSteps"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	// units: meters
	Distance *float64 `json:"distance,omitempty"`

	FloorsAscended  *int `json:"floorsAscended,omitempty"`
	FloorsDescended *int `json:"floorsDescended,omitempty"`
}

// RawSteps carries the cumulative count reported by the host.
type RawSteps struct {
	NumberOfSteps   int
	StartDate       time.Time
	EndDate         time.Time
	Distance        *float64
	FloorsAscended  *int
	FloorsDescended *int
}

type Postcode struct {
	Postcode string `json:"postcode"`
}

type Weather struct {
	Location    string `json:"location"`
	Description string `json:"description"`
	Icon        string `json:"icon"`

	// units: degrees Celsius
	Temperature float64 `json:"temperature"`

	// units: % of relative humidity
	Humidity float64 `json:"humidity"`

	// units: % of cloud cover
	Clouds float64 `json:"clouds"`

	// units: m/s
	Wind float64 `json:"wind"`
}

type Pollution struct {
	// 1 (good) to 5 (very poor)
	AQI int `json:"aqi"`
}

type Pollen struct {
	Risk    map[string]string      `json:"risk"`
	Species map[string]interface{} `json:"species"`
}
