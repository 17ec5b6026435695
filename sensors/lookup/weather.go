package lookup

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alepar/studysensors/sensors"
)

const kelvinOffset = 273.15

type weatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type pollutionResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

func (c *Client) Weather(ctx context.Context, fix sensors.PositionFix) (sensors.Weather, error) {
	const op = "lookup.Weather"

	params := roundedParams(fix, "lon")
	params.Set("appid", c.OpenWeatherKey)

	var resp weatherResponse
	if err := c.getJSON(ctx, c.WeatherURL, params, nil, &resp); err != nil {
		return sensors.Weather{}, sensors.LookupFailed(op, err)
	}
	if len(resp.Weather) == 0 {
		return sensors.Weather{}, sensors.LookupFailed(op, errors.New("response has no weather conditions"))
	}
	return refineWeather(resp, c.IconURL), nil
}

func refineWeather(raw weatherResponse, iconURL string) sensors.Weather {
	return sensors.Weather{
		Location:    raw.Name,
		Description: raw.Weather[0].Description,
		Icon:        iconURL + raw.Weather[0].Icon + ".png",
		Temperature: round(raw.Main.Temp-kelvinOffset, 1),
		Humidity:    round(raw.Main.Humidity, 2),
		Clouds:      round(raw.Clouds.All, 2),
		Wind:        round(raw.Wind.Speed, 2),
	}
}

func (c *Client) Pollution(ctx context.Context, fix sensors.PositionFix) (sensors.Pollution, error) {
	const op = "lookup.Pollution"

	params := roundedParams(fix, "lon")
	params.Set("appid", c.OpenWeatherKey)

	var resp pollutionResponse
	if err := c.getJSON(ctx, c.PollutionURL, params, nil, &resp); err != nil {
		return sensors.Pollution{}, sensors.LookupFailed(op, err)
	}
	if len(resp.List) == 0 {
		return sensors.Pollution{}, sensors.LookupFailed(op, errors.New("response has no pollution entries"))
	}
	return sensors.Pollution{AQI: resp.List[0].Main.AQI}, nil
}
