// internal/models/weather.go
package models

// WeatherData 天气快照
type WeatherData struct {
	Temp           int    `json:"temp"`
	Condition      string `json:"condition"`
	Recommendation string `json:"recommendation"`
}

const (
	ConditionSunny  = "Sunny"
	ConditionCloudy = "Cloudy"
	ConditionFoggy  = "Foggy"
	ConditionRainy  = "Rainy"
	ConditionSnowy  = "Snowy"
	ConditionStormy = "Stormy"
)
