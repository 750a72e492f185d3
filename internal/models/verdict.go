// internal/models/verdict.go
package models

// Decision 购买守门人的裁决
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// CarbonImpact 粗粒度碳影响
type CarbonImpact string

const (
	CarbonLow    CarbonImpact = "Low"
	CarbonMedium CarbonImpact = "Medium"
	CarbonHigh   CarbonImpact = "High"
)

// GatekeeperVerdict 单次扫描的结果，不持久化
type GatekeeperVerdict struct {
	Decision         Decision     `json:"decision"`
	Reason           string       `json:"reason"`
	SimilarItemID    string       `json:"similarItemId,omitempty"`
	CarbonImpact     CarbonImpact `json:"carbonImpact"`
	PotentialOutfits int          `json:"potentialOutfits"`
}

// GarmentAnalysis 上传图片的识别结果
type GarmentAnalysis struct {
	Title          string                `json:"title"`
	Category       Category              `json:"category"`
	Color          string                `json:"color"`
	Fabric         string                `json:"fabric"`
	Tags           []string              `json:"tags"`
	Sustainability *SustainabilityMetric `json:"sustainability,omitempty"`
}

// Design 生成式结果：文字说明加可选图片（data URL）
type Design struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}
