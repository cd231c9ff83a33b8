package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/voxline/voxline/internal/httpc"
)

// Open-Meteo endpoints used by the weather tool. Both are key-free
// public APIs. Vars so tests can point them at a fake server.
var (
	geocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastURL = "https://api.open-meteo.com/v1/forecast"
)

// EndCallTool returns the tool the model calls to hang up gracefully.
// The handler only flags intent; actual teardown happens after the
// farewell finishes playing.
func EndCallTool() Tool {
	return Tool{
		Name:        "end_call",
		Description: "End the phone call. Use when the caller says goodbye or asks to hang up.",
		Parameters: map[string]Param{
			"reason": {
				Type:        "string",
				Description: "Short reason for ending the call.",
			},
		},
		Handler: func(ctx context.Context, rc *RunContext, args map[string]any) (string, error) {
			reason, _ := args["reason"].(string)
			if reason == "" {
				reason = "caller requested"
			}
			if rc.EndCall == nil {
				return "", fmt.Errorf("no active call to end")
			}
			rc.EndCall(reason)
			return "The call will end after your goodbye message.", nil
		},
	}
}

// TimeTool returns the current-time tool. The location is fixed at
// construction so the assistant answers in the deployment's local time.
func TimeTool(loc *time.Location) Tool {
	if loc == nil {
		loc = time.Local
	}
	return Tool{
		Name:        "get_time",
		Description: "Get the current date and time.",
		Parameters:  map[string]Param{},
		Handler: func(ctx context.Context, rc *RunContext, args map[string]any) (string, error) {
			now := time.Now().In(loc)
			return now.Format("Monday, January 2, 15:04"), nil
		},
	}
}

// WeatherTool returns the weather tool backed by Open-Meteo. It
// geocodes the city name, then fetches the current conditions.
func WeatherTool(client *http.Client) Tool {
	if client == nil {
		client = httpc.Client
	}
	return Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a city.",
		Parameters: map[string]Param{
			"city": {
				Type:        "string",
				Description: "City name, for example Moscow or Berlin.",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, rc *RunContext, args map[string]any) (string, error) {
			city, _ := args["city"].(string)
			if city == "" {
				return "", fmt.Errorf("city is required")
			}

			lat, lon, place, err := geocode(ctx, client, city)
			if err != nil {
				return "", err
			}

			temp, wind, err := currentWeather(ctx, client, lat, lon)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Weather in %s: %.1f degrees, wind %.1f m/s.", place, temp, wind), nil
		},
	}
}

func geocode(ctx context.Context, client *http.Client, city string) (lat, lon float64, place string, err error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")

	var body struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err = getJSON(ctx, client, geocodeURL+"?"+q.Encode(), &body); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(body.Results) == 0 {
		return 0, 0, "", fmt.Errorf("city not found: %s", city)
	}

	r := body.Results[0]
	place = r.Name
	if r.Country != "" {
		place += ", " + r.Country
	}
	return r.Latitude, r.Longitude, place, nil
}

func currentWeather(ctx context.Context, client *http.Client, lat, lon float64) (temp, wind float64, err error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current_weather", "true")

	var body struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"windspeed"`
		} `json:"current_weather"`
	}
	if err = getJSON(ctx, client, forecastURL+"?"+q.Encode(), &body); err != nil {
		return 0, 0, fmt.Errorf("forecast: %w", err)
	}
	return body.CurrentWeather.Temperature, body.CurrentWeather.WindSpeed, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
