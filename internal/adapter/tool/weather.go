package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
)

const maxWeatherBodySize = 256 * 1024 // 256KB

// WeatherTool reports current weather for a city using an Open-Meteo
// compatible API (geocoding + forecast, no API key required).
type WeatherTool struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewWeatherTool creates the weather tool against the given base URL.
func NewWeatherTool(baseURL string, timeout time.Duration, logger *slog.Logger) *WeatherTool {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &WeatherTool{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (t *WeatherTool) Name() string { return "get_current_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather for a city. Returns temperature, wind speed and a condition summary."
}

func (t *WeatherTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"city": {
					"type": "string",
					"description": "City name, e.g. \"Berlin\"."
				},
				"unit": {
					"type": "string",
					"enum": ["celsius", "fahrenheit"],
					"description": "Temperature unit, defaults to celsius."
				}
			},
			"required": ["city"]
		}`),
	}
}

type weatherParams struct {
	City string `json:"city"`
	Unit string `json:"unit"`
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_weather", t.logger, params,
		func(ctx context.Context, span trace.Span, p weatherParams) (any, error) {
			if strings.TrimSpace(p.City) == "" {
				return ErrResult("city is required")
			}
			unit := p.Unit
			if unit == "" {
				unit = "celsius"
			}

			lat, lon, place, err := t.geocode(ctx, p.City)
			if err != nil {
				return nil, err
			}

			temp, wind, code, err := t.forecast(ctx, lat, lon, unit)
			if err != nil {
				return nil, err
			}

			symbol := "°C"
			if unit == "fahrenheit" {
				symbol = "°F"
			}
			return fmt.Sprintf("Current weather in %s: %s, %.1f%s, wind %.1f km/h.",
				place, weatherCondition(code), temp, symbol, wind), nil
		},
	)
}

func (t *WeatherTool) geocode(ctx context.Context, city string) (lat, lon float64, place string, err error) {
	u := fmt.Sprintf("%s/search?name=%s&count=1", t.baseURL, url.QueryEscape(city))
	var resp geocodeResponse
	if err := t.getJSON(ctx, u, &resp); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(resp.Results) == 0 {
		return 0, 0, "", fmt.Errorf("city %q not found", city)
	}
	r := resp.Results[0]
	place = r.Name
	if r.Country != "" {
		place += ", " + r.Country
	}
	return r.Latitude, r.Longitude, place, nil
}

func (t *WeatherTool) forecast(ctx context.Context, lat, lon float64, unit string) (temp, wind float64, code int, err error) {
	u := fmt.Sprintf("%s/forecast?latitude=%.4f&longitude=%.4f&current_weather=true&temperature_unit=%s",
		t.baseURL, lat, lon, url.QueryEscape(unit))
	var resp forecastResponse
	if err := t.getJSON(ctx, u, &resp); err != nil {
		return 0, 0, 0, fmt.Errorf("forecast: %w", err)
	}
	cw := resp.CurrentWeather
	return cw.Temperature, cw.WindSpeed, cw.WeatherCode, nil
}

func (t *WeatherTool) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWeatherBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// weatherCondition maps WMO weather codes to a short description.
func weatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	default:
		return "thunderstorm"
	}
}
