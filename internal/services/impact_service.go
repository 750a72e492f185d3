// internal/services/impact_service.go
package services

import (
	"math"

	"github.com/Corphon/VogueVault/internal/models"
)

// MaterialShare 材料构成中的一项
type MaterialShare struct {
	Material string `json:"material"`
	Percent  int    `json:"percent"`
}

// ItemValue 单件衣物的每次穿着成本
type ItemValue struct {
	ItemID      string  `json:"item_id"`
	Title       string  `json:"title"`
	CostPerWear float64 `json:"cost_per_wear"`
}

// ImpactReport 衣橱的可持续性报告
type ImpactReport struct {
	EcoScore          int             `json:"eco_score"`
	Grade             string          `json:"grade"`
	TotalItems        int             `json:"total_items"`
	RatedGood         int             `json:"rated_good"`
	TotalWears        int             `json:"total_wears"`
	TotalCost         float64         `json:"total_cost"`
	CostPerWear       float64         `json:"cost_per_wear"`
	MoneySaved        float64         `json:"money_saved"`
	BestValue         *ItemValue      `json:"best_value,omitempty"`
	WorstValue        *ItemValue      `json:"worst_value,omitempty"`
	MaterialBreakdown []MaterialShare `json:"material_breakdown"`
	RatingCounts      map[string]int  `json:"rating_counts"`
}

// materialBreakdown 固定的材料构成
var materialBreakdown = []MaterialShare{
	{Material: "Organic Cotton", Percent: 45},
	{Material: "Recycled Polyester", Percent: 30},
	{Material: "Synthetic/Other", Percent: 25},
}

// EcoScore A/B 评级占比，四舍五入到整数；空衣橱为 0
func EcoScore(wardrobe []models.WardrobeItem) int {
	if len(wardrobe) == 0 {
		return 0
	}
	good := 0
	for _, it := range wardrobe {
		if it.Sustainability != nil && it.Sustainability.Rating.IsGood() {
			good++
		}
	}
	return int(math.Round(100 * float64(good) / float64(len(wardrobe))))
}

// Grade 将分数映射为字母等级
func Grade(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score < 40:
		return "D"
	default:
		return "C"
	}
}

// BuildImpactReport 计算报告
func BuildImpactReport(wardrobe []models.WardrobeItem, moneySaved float64) ImpactReport {
	report := ImpactReport{
		EcoScore:          EcoScore(wardrobe),
		TotalItems:        len(wardrobe),
		MoneySaved:        moneySaved,
		MaterialBreakdown: append([]MaterialShare(nil), materialBreakdown...),
		RatingCounts:      map[string]int{},
	}
	report.Grade = Grade(report.EcoScore)

	for _, it := range wardrobe {
		report.TotalWears += it.WearCount
		report.TotalCost += it.Cost

		v := ItemValue{ItemID: it.ID, Title: it.Title, CostPerWear: roundCents(it.CostPerWear())}
		if report.BestValue == nil || v.CostPerWear < report.BestValue.CostPerWear {
			best := v
			report.BestValue = &best
		}
		if report.WorstValue == nil || v.CostPerWear > report.WorstValue.CostPerWear {
			worst := v
			report.WorstValue = &worst
		}
		if it.Sustainability != nil {
			report.RatingCounts[string(it.Sustainability.Rating)]++
			if it.Sustainability.Rating.IsGood() {
				report.RatedGood++
			}
		}
	}
	if report.TotalWears > 0 {
		report.CostPerWear = roundCents(report.TotalCost / float64(report.TotalWears))
	}
	return report
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
