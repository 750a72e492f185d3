// internal/models/wardrobe.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// Category 服装类别（封闭集合）
type Category string

const (
	CategoryTops        Category = "Tops"
	CategoryBottoms     Category = "Bottoms"
	CategoryShoes       Category = "Shoes"
	CategoryAccessories Category = "Accessories"
	CategoryOuterwear   Category = "Outerwear"
)

// Categories 按展示顺序返回全部类别
func Categories() []Category {
	return []Category{CategoryTops, CategoryBottoms, CategoryShoes, CategoryAccessories, CategoryOuterwear}
}

// ParseCategory 解析类别名称（大小写不敏感）
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Rating 可持续性评级 A-F
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingF Rating = "F"
)

// ParseRating 解析评级字母
func ParseRating(s string) (Rating, error) {
	switch r := Rating(strings.ToUpper(strings.TrimSpace(s))); r {
	case RatingA, RatingB, RatingC, RatingD, RatingF:
		return r, nil
	default:
		return "", fmt.Errorf("unknown rating %q", s)
	}
}

// IsGood A或B视为环保
func (r Rating) IsGood() bool {
	return r == RatingA || r == RatingB
}

// SustainabilityMetric 附加在单品上的可持续性评估，创建后不再修改
type SustainabilityMetric struct {
	Rating           Rating `json:"rating"`
	CarbonFootprint  string `json:"carbonFootprint"`
	WaterUsage       string `json:"waterUsage"`
	MaterialAnalysis string `json:"materialAnalysis"`
}

// WardrobeItem 衣橱中的单品
type WardrobeItem struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Category       Category              `json:"category"`
	ImageURL       string                `json:"imageUrl"`
	Tags           []string              `json:"tags"`
	Color          string                `json:"color"`
	Fabric         string                `json:"fabric"`
	WearCount      int                   `json:"wearCount"`
	Cost           float64               `json:"cost"`
	Sustainability *SustainabilityMetric `json:"sustainability,omitempty"`
	DateAdded      time.Time             `json:"dateAdded"`
	Brand          string                `json:"brand,omitempty"`
}

// Clone 深拷贝，避免快照之间共享切片
func (w WardrobeItem) Clone() WardrobeItem {
	c := w
	if w.Tags != nil {
		c.Tags = append([]string(nil), w.Tags...)
	}
	if w.Sustainability != nil {
		s := *w.Sustainability
		c.Sustainability = &s
	}
	return c
}

// CostPerWear 每次穿着成本；未穿过时返回总价
func (w WardrobeItem) CostPerWear() float64 {
	if w.WearCount <= 0 {
		return w.Cost
	}
	return w.Cost / float64(w.WearCount)
}
