package lookup

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/alepar/studysensors/sensors"
)

type pollenResponse struct {
	Data []struct {
		Risk    map[string]string      `json:"Risk"`
		Species map[string]interface{} `json:"Species"`
	} `json:"data"`
}

// Pollen queries Ambee, which takes the longitude as "lng" and the key as a
// header rather than a query parameter.
func (c *Client) Pollen(ctx context.Context, fix sensors.PositionFix) (sensors.Pollen, error) {
	const op = "lookup.Pollen"

	header := http.Header{}
	header.Set("x-api-key", c.AmbeeKey)

	var resp pollenResponse
	if err := c.getJSON(ctx, c.PollenURL, roundedParams(fix, "lng"), header, &resp); err != nil {
		return sensors.Pollen{}, sensors.LookupFailed(op, err)
	}
	if len(resp.Data) == 0 {
		return sensors.Pollen{}, sensors.LookupFailed(op, errors.New("response has no pollen data"))
	}
	return sensors.Pollen{Risk: resp.Data[0].Risk, Species: resp.Data[0].Species}, nil
}
