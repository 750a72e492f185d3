// Package weather looks up the current conditions from Open-Meteo and maps them
// onto the dashboard's condition buckets.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/VogueVault/internal/models"
)

// Client queries the forecast endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client; baseURL is e.g. https://api.open-meteo.com.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type forecastResponse struct {
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// Current fetches the weather at the given coordinates.
func (c *Client) Current(ctx context.Context, lat, lon float64) (models.WeatherData, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return models.WeatherData{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.WeatherData{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.WeatherData{}, fmt.Errorf("weather API error (%d): %s", resp.StatusCode, body)
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return models.WeatherData{}, fmt.Errorf("decoding weather: %w", err)
	}
	if fr.CurrentWeather == nil {
		return models.WeatherData{}, fmt.Errorf("weather response has no current_weather")
	}

	condition, recommendation := Describe(fr.CurrentWeather.WeatherCode)
	return models.WeatherData{
		Temp:           int(math.Round(fr.CurrentWeather.Temperature)),
		Condition:      condition,
		Recommendation: recommendation,
	}, nil
}

// Describe maps a WMO weather code to a condition bucket and its advice.
func Describe(code int) (condition, recommendation string) {
	switch {
	case code >= 1 && code <= 3:
		return models.ConditionCloudy, "Cloudy skies. A perfect backdrop for bold colors."
	case code >= 45 && code <= 48:
		return models.ConditionFoggy, "Mysterious fog. Layer up with textures."
	case code >= 51 && code <= 67:
		return models.ConditionRainy, "Rain detected. Don't forget your waterproof tech-wear."
	case code >= 71 && code <= 86:
		return models.ConditionSnowy, "Freezing temps. Time for the heavy-duty puffer."
	case code >= 95:
		return models.ConditionStormy, "Storm warning. Stay cozy indoors or go full cyberpunk."
	default:
		return models.ConditionSunny, "Great light for a vibrant outfit."
	}
}
