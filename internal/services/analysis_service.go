// internal/services/analysis_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/imaging"
	"github.com/Corphon/VogueVault/internal/llm"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/utils"
)

// 演示模式下的人为延迟
const (
	classifyMockDelay   = 1 * time.Second
	gatekeeperMockDelay = 2 * time.Second
	blendMockDelay      = 1500 * time.Millisecond
)

// AspectRatios 设计工作室支持的画幅
var AspectRatios = []string{"1:1", "3:4", "4:3", "16:9", "9:16"}

// ValidAspectRatio 是否为支持的画幅
func ValidAspectRatio(r string) bool {
	for _, a := range AspectRatios {
		if a == r {
			return true
		}
	}
	return false
}

// AnalysisService 远程分析客户端：每个操作都返回带来源标记的结果，从不向调用方返回远程错误
type AnalysisService struct {
	llm        *LLMService
	metrics    *utils.APIMetrics
	logger     *utils.Logger
	delayScale float64
}

// NewAnalysisService 创建分析服务；delayScale 缩放演示延迟（0 表示不等待）
func NewAnalysisService(llmService *LLMService, delayScale float64, metrics *utils.APIMetrics) *AnalysisService {
	if metrics == nil {
		metrics = utils.NewAPIMetrics(nil, nil)
	}
	return &AnalysisService{
		llm:        llmService,
		metrics:    metrics,
		logger:     utils.GetLogger(),
		delayScale: delayScale,
	}
}

// NeedsKey 是否缺少服务凭据
func (s *AnalysisService) NeedsKey() bool {
	return !s.llm.IsReady()
}

func (s *AnalysisService) mockDelay(ctx context.Context, d time.Duration) {
	d = time.Duration(float64(d) * s.delayScale)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *AnalysisService) record(op string, src Source, start time.Time, err error) {
	s.metrics.RecordAnalysis(op, string(src), time.Since(start))
	if src == SourceFallback {
		s.metrics.RecordError("upstream", op)
		s.logger.Warn("remote analysis failed, using fallback", utils.Fields{
			"operation": op,
			"upstream":  apperrors.IsUpstreamError(err),
			"error":     err,
		})
	}
}

type garmentPayload struct {
	Title          string   `json:"title"`
	Category       string   `json:"category"`
	Color          string   `json:"color"`
	Fabric         string   `json:"fabric"`
	Tags           []string `json:"tags"`
	Sustainability *struct {
		Rating           string `json:"rating"`
		CarbonFootprint  string `json:"carbonFootprint"`
		WaterUsage       string `json:"waterUsage"`
		MaterialAnalysis string `json:"materialAnalysis"`
	} `json:"sustainability"`
}

// MockGarment 无凭据时的识别结果
func MockGarment() models.GarmentAnalysis {
	return models.GarmentAnalysis{
		Title:    "Scanned Garment",
		Category: models.CategoryTops,
		Color:    "Black",
		Fabric:   "Cotton",
		Tags:     []string{"#Scanned", "#Sustainable"},
		Sustainability: &models.SustainabilityMetric{
			Rating:           models.RatingB,
			CarbonFootprint:  "5 kg CO2",
			WaterUsage:       "500 L",
			MaterialAnalysis: "Standard cotton production.",
		},
	}
}

// FallbackGarment 识别失败时的占位结果
func FallbackGarment() models.GarmentAnalysis {
	return models.GarmentAnalysis{
		Title:    "New Item",
		Category: models.CategoryTops,
		Color:    "Unknown",
		Fabric:   "Unknown",
		Tags:     []string{},
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "Unknown"
	}
	return s
}

// ClassifyGarment 识别上传的服装图片
func (s *AnalysisService) ClassifyGarment(ctx context.Context, img imaging.Image) Result[models.GarmentAnalysis] {
	start := time.Now()
	if s.NeedsKey() {
		s.mockDelay(ctx, classifyMockDelay)
		s.record("classify", SourceMock, start, nil)
		return mock(MockGarment())
	}

	var payload garmentPayload
	err := s.llm.GenerateJSON(ctx, llm.ContentRequest{
		Model:          s.llm.Models().Text,
		Parts:          []llm.Part{llm.ImagePart(img.MIME, img.Data), llm.TextPart(classifyPrompt)},
		ResponseSchema: classifySchema,
	}, &payload)
	if err == nil && strings.TrimSpace(payload.Title) == "" {
		err = fmt.Errorf("classification has no title")
	}
	if err != nil {
		s.record("classify", SourceFallback, start, err)
		return fallback(FallbackGarment())
	}

	result := models.GarmentAnalysis{
		Title:    strings.TrimSpace(payload.Title),
		Category: models.CategoryTops,
		Color:    orUnknown(payload.Color),
		Fabric:   orUnknown(payload.Fabric),
		Tags:     payload.Tags,
	}
	if cat, err := models.ParseCategory(payload.Category); err == nil {
		result.Category = cat
	}
	if result.Tags == nil {
		result.Tags = []string{}
	}
	if m := payload.Sustainability; m != nil {
		if rating, err := models.ParseRating(m.Rating); err == nil {
			result.Sustainability = &models.SustainabilityMetric{
				Rating:           rating,
				CarbonFootprint:  m.CarbonFootprint,
				WaterUsage:       m.WaterUsage,
				MaterialAnalysis: m.MaterialAnalysis,
			}
		}
	}

	s.record("classify", SourceLive, start, nil)
	return live(result)
}

// MockVerdict 无凭据时的守门人裁决
func MockVerdict() models.GatekeeperVerdict {
	return models.GatekeeperVerdict{
		Decision:         models.DecisionRejected,
		Reason:           "Duplicate Detected! You already own the 'Classic Blue Oxford' and 'Chambray Button Down' which serve the same aesthetic function.",
		SimilarItemID:    "5",
		CarbonImpact:     models.CarbonHigh,
		PotentialOutfits: 0,
	}
}

// FallbackVerdict 分析失败时不阻止用户
func FallbackVerdict() models.GatekeeperVerdict {
	return models.GatekeeperVerdict{
		Decision:         models.DecisionApproved,
		Reason:           "Analysis error, but it looks stylish. Proceed with caution.",
		CarbonImpact:     models.CarbonMedium,
		PotentialOutfits: 3,
	}
}

// Gatekeeper 将候选购买与现有衣橱比较
func (s *AnalysisService) Gatekeeper(ctx context.Context, img imaging.Image, wardrobe []models.WardrobeItem) Result[models.GatekeeperVerdict] {
	start := time.Now()
	if s.NeedsKey() {
		s.mockDelay(ctx, gatekeeperMockDelay)
		s.record("gatekeeper", SourceMock, start, nil)
		return mock(MockVerdict())
	}

	var verdict models.GatekeeperVerdict
	err := s.llm.GenerateJSON(ctx, llm.ContentRequest{
		Model:          s.llm.Models().Text,
		Parts:          []llm.Part{llm.ImagePart(img.MIME, img.Data), llm.TextPart(gatekeeperPrompt(wardrobe))},
		ResponseSchema: gatekeeperSchema,
	}, &verdict)
	if err == nil && verdict.Decision != models.DecisionApproved && verdict.Decision != models.DecisionRejected {
		err = fmt.Errorf("unexpected decision %q", verdict.Decision)
	}
	if err != nil {
		s.record("gatekeeper", SourceFallback, start, err)
		return fallback(FallbackVerdict())
	}

	switch verdict.CarbonImpact {
	case models.CarbonLow, models.CarbonMedium, models.CarbonHigh:
	default:
		verdict.CarbonImpact = models.CarbonMedium
	}
	if verdict.Decision == models.DecisionApproved || verdict.SimilarItemID == "null" {
		verdict.SimilarItemID = ""
	}
	if verdict.PotentialOutfits < 0 {
		verdict.PotentialOutfits = 0
	}

	s.record("gatekeeper", SourceLive, start, nil)
	return live(verdict)
}

// designFromResponse 合并文本与第一张图片
func designFromResponse(resp *llm.ContentResponse, emptyText string) models.Design {
	d := models.Design{Text: strings.TrimSpace(resp.Text)}
	if d.Text == "" {
		d.Text = emptyText
	}
	if img, ok := resp.FirstImage(); ok {
		d.Image = imaging.ToDataURL(img.Data, img.MIMEType)
	}
	return d
}

// SuggestOutfit 文字搭配建议加可选的预览图
func (s *AnalysisService) SuggestOutfit(ctx context.Context, wardrobe []models.WardrobeItem, styleContext string, images []imaging.Image) Result[models.Design] {
	start := time.Now()
	if s.NeedsKey() {
		s.record("suggest", SourceMock, start, nil)
		return mock(models.Design{Text: "Stylist unavailable (Missing API Key). Try pairing the Denim Jacket with the White Tee."})
	}

	parts := []llm.Part{llm.TextPart(stylistPrompt(wardrobe, styleContext))}
	for _, img := range images {
		parts = append(parts, llm.ImagePart(img.MIME, img.Data))
	}

	resp, err := s.llm.Generate(ctx, llm.ContentRequest{
		Model:       s.llm.Models().Image,
		Parts:       parts,
		AspectRatio: "1:1",
	})
	if err != nil {
		s.record("suggest", SourceFallback, start, err)
		return fallback(models.Design{Text: "Error contacting the digital stylist."})
	}

	s.record("suggest", SourceLive, start, nil)
	return live(designFromResponse(resp, "Outfit generated."))
}

// BlendStyles 将二到三张参考图融合成一件新设计
func (s *AnalysisService) BlendStyles(ctx context.Context, images []imaging.Image) Result[models.Design] {
	start := time.Now()
	if len(images) < 2 || len(images) > 3 {
		return fallback(models.Design{Text: "Add two or three references to start a synthesis."})
	}
	if s.NeedsKey() {
		s.mockDelay(ctx, blendMockDelay)
		s.record("blend", SourceMock, start, nil)
		return mock(models.Design{Text: "Mixer offline (Missing API Key). Imagine the cut of your first reference rendered in the palette of the second."})
	}

	parts := []llm.Part{llm.TextPart(fmt.Sprintf(blendPrompt, len(images)))}
	for _, img := range images {
		parts = append(parts, llm.ImagePart(img.MIME, img.Data))
	}

	resp, err := s.llm.Generate(ctx, llm.ContentRequest{
		Model:       s.llm.Models().Image,
		Parts:       parts,
		AspectRatio: "3:4",
	})
	if err != nil {
		s.record("blend", SourceFallback, start, err)
		return fallback(models.Design{Text: "Synthesis failed. The references could not be fused."})
	}

	s.record("blend", SourceLive, start, nil)
	return live(designFromResponse(resp, "Hybrid synthesized."))
}

// GeneratePrototype 根据概念生成一张图片；没有图片时 Value 为空
func (s *AnalysisService) GeneratePrototype(ctx context.Context, concept string) Result[string] {
	start := time.Now()
	if s.NeedsKey() {
		s.record("prototype", SourceMock, start, nil)
		return mock("")
	}

	resp, err := s.llm.Generate(ctx, llm.ContentRequest{
		Model: s.llm.Models().Image,
		Parts: []llm.Part{llm.TextPart(fmt.Sprintf(prototypePromptTemplate, concept))},
	})
	if err != nil {
		s.record("prototype", SourceFallback, start, err)
		return fallback("")
	}

	img, ok := resp.FirstImage()
	if !ok {
		s.record("prototype", SourceLive, start, nil)
		return live("")
	}
	s.record("prototype", SourceLive, start, nil)
	return live(imaging.ToDataURL(img.Data, img.MIMEType))
}

// GenerateProDesign 设计工作室的高质量生成，需要凭据
func (s *AnalysisService) GenerateProDesign(ctx context.Context, prompt, aspectRatio string, reference *imaging.Image) (Result[models.Design], error) {
	if s.NeedsKey() {
		return Result[models.Design]{}, apperrors.NewCredentialMissingError("design studio requires a service credential")
	}
	if !ValidAspectRatio(aspectRatio) {
		aspectRatio = "1:1"
	}

	start := time.Now()
	parts := []llm.Part{llm.TextPart(fmt.Sprintf(proDesignPromptTemplate, prompt))}
	if reference != nil {
		parts = append(parts, llm.ImagePart(reference.MIME, reference.Data))
	}

	resp, err := s.llm.Generate(ctx, llm.ContentRequest{
		Model:       s.llm.Models().ProImage,
		Parts:       parts,
		AspectRatio: aspectRatio,
		ImageSize:   "1K",
	})
	if err != nil {
		// 凭据无权访问该模型时提示重新设置
		if strings.Contains(err.Error(), "Requested entity was not found") {
			s.record("pro_design", SourceFallback, start, err)
			return Result[models.Design]{}, apperrors.NewCredentialMissingError("credential cannot access the design model")
		}
		s.record("pro_design", SourceFallback, start, err)
		return fallback(models.Design{Text: "The design lab could not render this concept."}), nil
	}

	s.record("pro_design", SourceLive, start, nil)
	return live(designFromResponse(resp, "Design rendered.")), nil
}
