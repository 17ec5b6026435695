package lookup

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/studysensors/sensors"
)

const (
	DefaultPostcodeURL  = "https://api.postcodes.io/postcodes"
	DefaultWeatherURL   = "https://api.openweathermap.org/data/2.5/weather"
	DefaultPollutionURL = "https://api.openweathermap.org/data/2.5/air_pollution"
	DefaultPollenURL    = "https://api.ambeedata.com/latest/pollen/by-lat-lng"
	DefaultIconURL      = "https://openweathermap.org/img/w/"
)

// Client queries the remote geodata services. Every call is a single GET;
// nothing is retried or cached.
type Client struct {
	PostcodeURL  string
	WeatherURL   string
	PollutionURL string
	PollenURL    string
	IconURL      string

	OpenWeatherKey string
	AmbeeKey       string

	HTTPClient *http.Client
}

func NewClient(openWeatherKey, ambeeKey string) *Client {
	return &Client{
		PostcodeURL:    DefaultPostcodeURL,
		WeatherURL:     DefaultWeatherURL,
		PollutionURL:   DefaultPollutionURL,
		PollenURL:      DefaultPollenURL,
		IconURL:        DefaultIconURL,
		OpenWeatherKey: openWeatherKey,
		AmbeeKey:       ambeeKey,
		HTTPClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

// getJSON issues the GET and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, base string, params url.Values, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to call %s", base)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s returned status %d: %s", base, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to parse response from %s", base)
	}
	log.Debugf("lookup %s succeeded", base)
	return nil
}

// coord formats a coordinate with the shortest exact representation.
func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5) / p
}

func roundedParams(fix sensors.PositionFix, lonKey string) url.Values {
	params := url.Values{}
	params.Set(lonKey, coord(round(fix.Coords.Longitude, 2)))
	params.Set("lat", coord(round(fix.Coords.Latitude, 2)))
	return params
}
