package lookup

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/alepar/studysensors/sensors"
)

type postcodeResponse struct {
	Result []struct {
		Postcode string `json:"postcode"`
	} `json:"result"`
}

// Postcode returns the nearest postcode. Coordinates are sent at full
// precision.
func (c *Client) Postcode(ctx context.Context, fix sensors.PositionFix) (sensors.Postcode, error) {
	const op = "lookup.Postcode"

	params := url.Values{}
	params.Set("lon", coord(fix.Coords.Longitude))
	params.Set("lat", coord(fix.Coords.Latitude))
	params.Set("limit", "1")

	var resp postcodeResponse
	if err := c.getJSON(ctx, c.PostcodeURL, params, nil, &resp); err != nil {
		return sensors.Postcode{}, sensors.LookupFailed(op, err)
	}
	if len(resp.Result) == 0 {
		return sensors.Postcode{}, sensors.LookupFailed(op, errors.New("no postcode near position"))
	}
	return sensors.Postcode{Postcode: resp.Result[0].Postcode}, nil
}
