// Package catalog holds the built-in starting wardrobe and the offline weather snapshot.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/VogueVault/internal/models"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Items      []seedItem  `yaml:"items"`
	Weather    seedWeather `yaml:"weather"`
	MoneySaved float64     `yaml:"money_saved"`
}

type seedItem struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Category       string   `yaml:"category"`
	Image          string   `yaml:"image"`
	Tags           []string `yaml:"tags"`
	Color          string   `yaml:"color"`
	Fabric         string   `yaml:"fabric"`
	WearCount      int      `yaml:"wear_count"`
	Cost           float64  `yaml:"cost"`
	DateAdded      string   `yaml:"date_added"`
	Brand          string   `yaml:"brand"`
	Sustainability *struct {
		Rating   string `yaml:"rating"`
		Carbon   string `yaml:"carbon"`
		Water    string `yaml:"water"`
		Analysis string `yaml:"analysis"`
	} `yaml:"sustainability"`
}

type seedWeather struct {
	Temp           int    `yaml:"temp"`
	Condition      string `yaml:"condition"`
	Recommendation string `yaml:"recommendation"`
}

// Catalog is the decoded seed data.
type Catalog struct {
	Items      []models.WardrobeItem
	Weather    models.WeatherData
	MoneySaved float64
}

var (
	defaultCatalog *Catalog
	defaultErr     error
	defaultOnce    sync.Once
)

// Parse decodes a seed document. Unknown categories or ratings fail the whole document.
func Parse(data []byte) (*Catalog, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding seed catalog: %w", err)
	}

	c := &Catalog{
		Items:      make([]models.WardrobeItem, 0, len(f.Items)),
		MoneySaved: f.MoneySaved,
		Weather: models.WeatherData{
			Temp:           f.Weather.Temp,
			Condition:      f.Weather.Condition,
			Recommendation: f.Weather.Recommendation,
		},
	}

	for _, si := range f.Items {
		cat, err := models.ParseCategory(si.Category)
		if err != nil {
			return nil, fmt.Errorf("seed item %s: %w", si.ID, err)
		}
		added, err := time.Parse("2006-01-02", si.DateAdded)
		if err != nil {
			return nil, fmt.Errorf("seed item %s: bad date_added: %w", si.ID, err)
		}

		item := models.WardrobeItem{
			ID:        si.ID,
			Title:     si.Title,
			Category:  cat,
			ImageURL:  si.Image,
			Tags:      si.Tags,
			Color:     si.Color,
			Fabric:    si.Fabric,
			WearCount: si.WearCount,
			Cost:      si.Cost,
			DateAdded: added,
			Brand:     si.Brand,
		}
		if si.Sustainability != nil {
			rating, err := models.ParseRating(si.Sustainability.Rating)
			if err != nil {
				return nil, fmt.Errorf("seed item %s: %w", si.ID, err)
			}
			item.Sustainability = &models.SustainabilityMetric{
				Rating:           rating,
				CarbonFootprint:  si.Sustainability.Carbon,
				WaterUsage:       si.Sustainability.Water,
				MaterialAnalysis: si.Sustainability.Analysis,
			}
		}
		c.Items = append(c.Items, item)
	}

	return c, nil
}

func load() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(seedYAML)
	})
	return defaultCatalog, defaultErr
}

// SeedWardrobe returns a fresh copy of the starting wardrobe.
func SeedWardrobe() []models.WardrobeItem {
	c, err := load()
	if err != nil {
		// the embedded file is part of the binary
		panic(err)
	}
	items := make([]models.WardrobeItem, len(c.Items))
	for i, it := range c.Items {
		items[i] = it.Clone()
	}
	return items
}

// MockWeather is the snapshot used when no live lookup is available.
func MockWeather() models.WeatherData {
	c, err := load()
	if err != nil {
		panic(err)
	}
	return c.Weather
}

// InitialMoneySaved is the savings counter of a fresh session.
func InitialMoneySaved() float64 {
	c, err := load()
	if err != nil {
		panic(err)
	}
	return c.MoneySaved
}
