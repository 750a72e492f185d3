// internal/services/screen_service.go
package services

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/imaging"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/state"
	"github.com/Corphon/VogueVault/internal/utils"
)

// 守门人放弃购买时的随机节省金额区间
const (
	minDiscardAmount = 45
	maxDiscardAmount = 120
)

// MaxMixerImages 混搭器最多接受的参考图数量
const MaxMixerImages = 3

// Vault 排序选项
const (
	SortNewest   = "newest"
	SortWearDesc = "wear-desc"
	SortWearAsc  = "wear-asc"
)

// ScreenService 屏幕控制器：读取会话状态，调用分析服务，维护各屏幕的局部状态
type ScreenService struct {
	sessions *SessionService
	analysis *AnalysisService
	metrics  *utils.APIMetrics
	logger   *utils.Logger

	weatherMu sync.RWMutex
	weather   models.WeatherData

	randIntN func(n int) int
	now      func() time.Time
}

// NewScreenService 创建屏幕服务
func NewScreenService(sessions *SessionService, analysis *AnalysisService, weather models.WeatherData, metrics *utils.APIMetrics) *ScreenService {
	if metrics == nil {
		metrics = utils.NewAPIMetrics(nil, nil)
	}
	return &ScreenService{
		sessions: sessions,
		analysis: analysis,
		metrics:  metrics,
		logger:   utils.GetLogger(),
		weather:  weather,
		randIntN: rand.Intn,
		now:      time.Now,
	}
}

// SetWeather 更新仪表盘天气（启动时获取一次）
func (s *ScreenService) SetWeather(w models.WeatherData) {
	s.weatherMu.Lock()
	defer s.weatherMu.Unlock()
	s.weather = w
}

// Weather 当前天气
func (s *ScreenService) Weather() models.WeatherData {
	s.weatherMu.RLock()
	defer s.weatherMu.RUnlock()
	return s.weather
}

// begin 在屏幕空闲时标记开始工作并返回当前代次
func (s *ScreenService) begin(sess *Session, screen string, mark func(sc *Screens) bool) (uint64, bool) {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()
	if !mark(sess.Screens) {
		return 0, false
	}
	return sess.Generations.Current(screen), true
}

// finish 只有代次仍然有效时才应用结果
func (s *ScreenService) finish(sess *Session, screen string, token uint64, apply func(sc *Screens)) bool {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()
	if !sess.Generations.IsCurrent(screen, token) {
		s.metrics.RecordStaleResult(screen)
		return false
	}
	apply(sess.Screens)
	return true
}

// Reset 重置屏幕并使进行中的请求失效
func (s *ScreenService) Reset(sess *Session, screen string) error {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()

	if !sess.Screens.resetLocked(screen) {
		return apperrors.NewValidationError("unknown screen: "+screen, nil)
	}
	sess.Generations.Bump(screen)
	return nil
}

func (s *ScreenService) newItemID(prefix string, st state.State) string {
	base := s.now().UnixMilli()
	for i := int64(0); ; i++ {
		id := prefix + strconv.FormatInt(base+i, 10)
		if _, exists := st.FindItem(id); !exists {
			return id
		}
	}
}

// Navigate 切换当前屏幕
func (s *ScreenService) Navigate(ctx context.Context, sess *Session, view string) (state.Snapshot, error) {
	v, err := models.ParseView(view)
	if err != nil {
		return state.Snapshot{}, apperrors.NewValidationError(err.Error(), err)
	}
	return s.sessions.Dispatch(ctx, sess, state.Navigate{View: v}), nil
}

// ---------------------------------------------------------------- dashboard

// DashboardView 仪表盘数据
type DashboardView struct {
	Weather      models.WeatherData    `json:"weather"`
	LookOfTheDay []models.WardrobeItem `json:"look_of_the_day"`
	MoneySaved   float64               `json:"money_saved"`
	ItemCount    int                   `json:"item_count"`
	NeedsKey     bool                  `json:"needs_key"`
}

// LookOfTheDay 随机上装加随机下装，下雨或寒冷时加第一件外套
func LookOfTheDay(wardrobe []models.WardrobeItem, condition string, randIntN func(int) int) []models.WardrobeItem {
	var tops, bottoms, outerwear []models.WardrobeItem
	for _, it := range wardrobe {
		switch it.Category {
		case models.CategoryTops:
			tops = append(tops, it)
		case models.CategoryBottoms:
			bottoms = append(bottoms, it)
		case models.CategoryOuterwear:
			outerwear = append(outerwear, it)
		}
	}

	look := []models.WardrobeItem{}
	if len(tops) > 0 {
		look = append(look, tops[randIntN(len(tops))])
	}
	if len(bottoms) > 0 {
		look = append(look, bottoms[randIntN(len(bottoms))])
	}
	if (strings.Contains(condition, "Rain") || strings.Contains(condition, "Cold")) && len(outerwear) > 0 {
		look = append(look, outerwear[0])
	}
	return look
}

// Dashboard 汇总仪表盘
func (s *ScreenService) Dashboard(sess *Session) DashboardView {
	st := sess.Store.Snapshot().State
	w := s.Weather()
	return DashboardView{
		Weather:      w,
		LookOfTheDay: LookOfTheDay(st.Wardrobe, w.Condition, s.randIntN),
		MoneySaved:   st.MoneySaved,
		ItemCount:    len(st.Wardrobe),
		NeedsKey:     s.analysis.NeedsKey(),
	}
}

// ---------------------------------------------------------------- vault

// VaultQuery 衣橱筛选条件
type VaultQuery struct {
	Category string
	Search   string
	Sort     string
}

// VaultView 筛选后的衣橱
type VaultView struct {
	Items  []models.WardrobeItem `json:"items"`
	Total  int                   `json:"total"`
	Filter string                `json:"filter"`
	Sort   string                `json:"sort"`
}

// FilterWardrobe 按类别、标题和排序选项筛选；未知类别视为 All
func FilterWardrobe(items []models.WardrobeItem, q VaultQuery) VaultView {
	filter := "All"
	var category models.Category
	if c, err := models.ParseCategory(q.Category); err == nil {
		category = c
		filter = string(c)
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := []models.WardrobeItem{}
	for _, it := range items {
		if category != "" && it.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.Title), search) {
			continue
		}
		out = append(out, it)
	}

	sortBy := q.Sort
	switch sortBy {
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].DateAdded.After(out[j].DateAdded) })
	case SortWearAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].WearCount < out[j].WearCount })
	default:
		sortBy = SortWearDesc
		sort.SliceStable(out, func(i, j int) bool { return out[i].WearCount > out[j].WearCount })
	}

	return VaultView{Items: out, Total: len(items), Filter: filter, Sort: sortBy}
}

// Vault 返回筛选后的衣橱
func (s *ScreenService) Vault(sess *Session, q VaultQuery) VaultView {
	return FilterWardrobe(sess.Store.Snapshot().State.Wardrobe, q)
}

// SetBrand 修改单品品牌
func (s *ScreenService) SetBrand(ctx context.Context, sess *Session, itemID, brand string) (state.Snapshot, error) {
	item, ok := sess.Store.Snapshot().State.FindItem(itemID)
	if !ok {
		return state.Snapshot{}, apperrors.NewNotFoundError("item not found: "+itemID, nil)
	}
	item.Brand = strings.TrimSpace(brand)
	return s.sessions.Dispatch(ctx, sess, state.UpdateItem{Item: item}), nil
}

// StageForOutfit 把单品加入搭配并打开搭配器
func (s *ScreenService) StageForOutfit(ctx context.Context, sess *Session, itemID string) (state.Snapshot, error) {
	item, ok := sess.Store.Snapshot().State.FindItem(itemID)
	if !ok {
		return state.Snapshot{}, apperrors.NewNotFoundError("item not found: "+itemID, nil)
	}
	return s.sessions.Dispatch(ctx, sess, state.StageForOutfit{Item: item}), nil
}

// Upload 识别上传的图片并加入衣橱；img 为 nil 时不做任何事
func (s *ScreenService) Upload(ctx context.Context, sess *Session, img *imaging.Image) VaultScreen {
	if img == nil {
		return sess.Screens.View().Vault
	}

	preview := img.DataURL()
	token, ok := s.begin(sess, ScreenVault, func(sc *Screens) bool {
		if sc.Vault.Status == StatusWorking {
			return false
		}
		sc.Vault = VaultScreen{Status: StatusWorking, Preview: preview}
		return true
	})
	if !ok {
		return sess.Screens.View().Vault
	}

	result := s.analysis.ClassifyGarment(ctx, *img)

	s.finish(sess, ScreenVault, token, func(sc *Screens) {
		analysis := result.Value
		tags := analysis.Tags
		if len(tags) == 0 {
			tags = []string{"#New"}
		}
		item := models.WardrobeItem{
			ID:             s.newItemID("", sess.Store.Snapshot().State),
			Title:          analysis.Title,
			Category:       analysis.Category,
			ImageURL:       preview,
			Tags:           tags,
			Color:          analysis.Color,
			Fabric:         analysis.Fabric,
			Sustainability: analysis.Sustainability,
			DateAdded:      s.now().UTC(),
		}
		s.sessions.Dispatch(ctx, sess, state.AddItem{Item: item})
		sc.Vault = VaultScreen{Status: StatusDone, Preview: preview, LastAdded: &item, Source: result.Source}
	})

	return sess.Screens.View().Vault
}

// ---------------------------------------------------------------- orchestrator

// ToggleOutfit 加入或移出搭配
func (s *ScreenService) ToggleOutfit(ctx context.Context, sess *Session, itemID string) (state.Snapshot, error) {
	st := sess.Store.Snapshot().State
	item, ok := st.FindItem(itemID)
	if !ok {
		// 已移出衣橱但仍在搭配中的单品也允许取消
		for _, staged := range st.Outfit {
			if staged.ID == itemID {
				item, ok = staged, true
			}
		}
	}
	if !ok {
		return state.Snapshot{}, apperrors.NewNotFoundError("item not found: "+itemID, nil)
	}
	return s.sessions.Dispatch(ctx, sess, state.ToggleOutfit{Item: item}), nil
}

// MissingPiece 找出搭配中缺少的类别并返回第一件可用单品
func MissingPiece(wardrobe, outfit []models.WardrobeItem) (models.WardrobeItem, bool) {
	hasTop, hasBottom := false, false
	staged := make(map[string]bool, len(outfit))
	for _, it := range outfit {
		staged[it.ID] = true
		hasTop = hasTop || it.Category == models.CategoryTops
		hasBottom = hasBottom || it.Category == models.CategoryBottoms
	}

	needed := models.CategoryAccessories
	if !hasTop {
		needed = models.CategoryTops
	} else if !hasBottom {
		needed = models.CategoryBottoms
	}

	for _, it := range wardrobe {
		if it.Category == needed && !staged[it.ID] {
			return it, true
		}
	}
	return models.WardrobeItem{}, false
}

// SuggestMissingPiece 自动补上缺少的单品；没有可用单品时状态不变
func (s *ScreenService) SuggestMissingPiece(ctx context.Context, sess *Session) (state.Snapshot, *models.WardrobeItem) {
	st := sess.Store.Snapshot()
	item, ok := MissingPiece(st.State.Wardrobe, st.State.Outfit)
	if !ok {
		return st, nil
	}
	return s.sessions.Dispatch(ctx, sess, state.ToggleOutfit{Item: item}), &item
}

// ClearOutfit 清空搭配
func (s *ScreenService) ClearOutfit(ctx context.Context, sess *Session) state.Snapshot {
	return s.sessions.Dispatch(ctx, sess, state.ClearOutfit{})
}

// StylistContext 描述已选单品
func StylistContext(outfit []models.WardrobeItem) string {
	titles := make([]string, len(outfit))
	for i, it := range outfit {
		titles[i] = it.Title
	}
	return "The user has selected: " + strings.Join(titles, ", ") + ". Create a cohesive look."
}

// AskStylist 请求AI造型建议；搭配为空时不做任何事
func (s *ScreenService) AskStylist(ctx context.Context, sess *Session) OrchestratorScreen {
	st := sess.Store.Snapshot().State
	if len(st.Outfit) == 0 {
		return sess.Screens.View().Orchestrator
	}

	styleContext := StylistContext(st.Outfit)
	token, ok := s.begin(sess, ScreenOrchestrator, func(sc *Screens) bool {
		if sc.Orchestrator.Status == StatusWorking {
			return false
		}
		sc.Orchestrator = OrchestratorScreen{Status: StatusWorking, Context: styleContext}
		return true
	})
	if !ok {
		return sess.Screens.View().Orchestrator
	}

	// 只有内联图片的单品才作为参考图发送
	var images []imaging.Image
	for _, it := range st.Outfit {
		if img, err := imaging.ParseDataURL(it.ImageURL); err == nil {
			images = append(images, *img)
		}
	}

	result := s.analysis.SuggestOutfit(ctx, st.Wardrobe, styleContext, images)

	s.finish(sess, ScreenOrchestrator, token, func(sc *Screens) {
		design := result.Value
		sc.Orchestrator = OrchestratorScreen{Status: StatusDone, Context: styleContext, Suggestion: &design, Source: result.Source}
	})
	return sess.Screens.View().Orchestrator
}

// ---------------------------------------------------------------- gatekeeper

// Scan 判断候选购买；img 为 nil 时不做任何事
func (s *ScreenService) Scan(ctx context.Context, sess *Session, img *imaging.Image) GatekeeperScreen {
	if img == nil {
		return sess.Screens.View().Gatekeeper
	}

	preview := img.DataURL()
	token, ok := s.begin(sess, ScreenGatekeeper, func(sc *Screens) bool {
		if sc.Gatekeeper.Status == StatusWorking {
			return false
		}
		sc.Gatekeeper = GatekeeperScreen{Status: StatusWorking, Preview: preview}
		return true
	})
	if !ok {
		return sess.Screens.View().Gatekeeper
	}

	wardrobe := sess.Store.Snapshot().State.Wardrobe
	result := s.analysis.Gatekeeper(ctx, *img, wardrobe)

	s.finish(sess, ScreenGatekeeper, token, func(sc *Screens) {
		verdict := result.Value
		sc.Gatekeeper = GatekeeperScreen{Status: StatusDone, Preview: preview, Verdict: &verdict, Source: result.Source}
	})
	return sess.Screens.View().Gatekeeper
}

// Discard 放弃购买：记入节省金额并重置守门人；amount 为 nil 时随机 45..120，非正数不做任何事
func (s *ScreenService) Discard(ctx context.Context, sess *Session, amount *float64) (state.Snapshot, GatekeeperScreen) {
	saved := float64(minDiscardAmount + s.randIntN(maxDiscardAmount-minDiscardAmount+1))
	if amount != nil {
		saved = *amount
	}
	if saved <= 0 {
		return sess.Store.Snapshot(), sess.Screens.View().Gatekeeper
	}

	snap := s.sessions.Dispatch(ctx, sess, state.DiscardPurchase{Amount: saved})

	sess.Screens.mu.Lock()
	sess.Screens.resetLocked(ScreenGatekeeper)
	sess.Screens.Gatekeeper.LastSaved = saved
	sess.Generations.Bump(ScreenGatekeeper)
	screen := sess.Screens.Gatekeeper
	sess.Screens.mu.Unlock()

	s.logger.Info("purchase avoided", utils.Fields{"session": sess.ID, "amount": saved})
	return snap, screen
}

// ---------------------------------------------------------------- mixer

// AddMixerImages 添加参考图，超过上限的部分被忽略
func (s *ScreenService) AddMixerImages(sess *Session, images []imaging.Image) MixerScreen {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()

	for _, img := range images {
		if len(sess.Screens.Mixer.Images) >= MaxMixerImages {
			break
		}
		sess.Screens.Mixer.Images = append(sess.Screens.Mixer.Images, MixerImage{
			ID:      uuid.NewString(),
			DataURL: img.DataURL(),
		})
	}
	return sess.Screens.viewLocked().Mixer
}

// RemoveMixerImage 移除参考图并清除结果
func (s *ScreenService) RemoveMixerImage(sess *Session, imageID string) MixerScreen {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()

	images := sess.Screens.Mixer.Images[:0]
	removed := false
	for _, img := range sess.Screens.Mixer.Images {
		if img.ID == imageID {
			removed = true
			continue
		}
		images = append(images, img)
	}
	sess.Screens.Mixer.Images = images
	if removed {
		sess.Screens.Mixer.Result = nil
		sess.Screens.Mixer.Source = ""
		sess.Screens.Mixer.Saved = false
		if sess.Screens.Mixer.Status == StatusDone {
			sess.Screens.Mixer.Status = StatusIdle
		}
	}
	return sess.Screens.viewLocked().Mixer
}

// Mix 融合参考图；少于两张时不做任何事
func (s *ScreenService) Mix(ctx context.Context, sess *Session) MixerScreen {
	var refs []MixerImage
	token, ok := s.begin(sess, ScreenMixer, func(sc *Screens) bool {
		if sc.Mixer.Status == StatusWorking || len(sc.Mixer.Images) < 2 {
			return false
		}
		refs = append(refs, sc.Mixer.Images...)
		sc.Mixer.Status = StatusWorking
		sc.Mixer.Result = nil
		sc.Mixer.Source = ""
		sc.Mixer.Saved = false
		return true
	})
	if !ok {
		return sess.Screens.View().Mixer
	}

	images := make([]imaging.Image, 0, len(refs))
	for _, ref := range refs {
		if img, err := imaging.ParseDataURL(ref.DataURL); err == nil {
			images = append(images, *img)
		}
	}

	result := s.analysis.BlendStyles(ctx, images)

	s.finish(sess, ScreenMixer, token, func(sc *Screens) {
		design := result.Value
		sc.Mixer.Status = StatusDone
		sc.Mixer.Result = &design
		sc.Mixer.Source = result.Source
	})
	return sess.Screens.View().Mixer
}

// SaveMix 把融合结果存入衣橱；没有图片或已保存时不做任何事
func (s *ScreenService) SaveMix(ctx context.Context, sess *Session) (state.Snapshot, MixerScreen) {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()

	mixer := &sess.Screens.Mixer
	if mixer.Result == nil || mixer.Result.Image == "" || mixer.Saved {
		return sess.Store.Snapshot(), sess.Screens.viewLocked().Mixer
	}

	item := models.WardrobeItem{
		ID:        s.newItemID("mix-", sess.Store.Snapshot().State),
		Title:     "Mixed Synthesis Hybrid",
		Category:  models.CategoryOuterwear,
		ImageURL:  mixer.Result.Image,
		Tags:      []string{"#AI-Mix", "#Futuristic", "#Synthesis"},
		Color:     "Multi",
		Fabric:    "Cyber-Silk Blend",
		DateAdded: s.now().UTC(),
		Brand:     "VogueVault AI",
	}
	snap := s.sessions.Dispatch(ctx, sess, state.AddItem{Item: item})
	mixer.Saved = true
	return snap, sess.Screens.viewLocked().Mixer
}

// ---------------------------------------------------------------- design studio

// DesignTitle 取提示词前三个词作为标题
func DesignTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return "AI Masterpiece"
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ") + " Concept"
}

// GenerateDesign 设计工作室生成；提示词为空时不做任何事，缺少凭据时标记 needs_key
func (s *ScreenService) GenerateDesign(ctx context.Context, sess *Session, prompt, aspectRatio string, reference *imaging.Image) DesignStudioScreen {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return sess.Screens.View().DesignStudio
	}
	if !ValidAspectRatio(aspectRatio) {
		aspectRatio = "1:1"
	}
	refURL := ""
	if reference != nil {
		refURL = reference.DataURL()
	}

	if s.analysis.NeedsKey() {
		sess.Screens.mu.Lock()
		sess.Screens.DesignStudio.NeedsKey = true
		sess.Screens.DesignStudio.Prompt = prompt
		sess.Screens.DesignStudio.AspectRatio = aspectRatio
		sess.Screens.mu.Unlock()
		return sess.Screens.View().DesignStudio
	}

	token, ok := s.begin(sess, ScreenDesignStudio, func(sc *Screens) bool {
		if sc.DesignStudio.Status == StatusWorking {
			return false
		}
		sc.DesignStudio = DesignStudioScreen{Status: StatusWorking, Prompt: prompt, AspectRatio: aspectRatio, Reference: refURL}
		return true
	})
	if !ok {
		return sess.Screens.View().DesignStudio
	}

	result, err := s.analysis.GenerateProDesign(ctx, prompt, aspectRatio, reference)

	s.finish(sess, ScreenDesignStudio, token, func(sc *Screens) {
		if err != nil {
			sc.DesignStudio.Status = StatusIdle
			sc.DesignStudio.NeedsKey = apperrors.IsCredentialMissing(err)
			return
		}
		design := result.Value
		sc.DesignStudio.Status = StatusDone
		sc.DesignStudio.Result = &design
		sc.DesignStudio.Source = result.Source
	})
	return sess.Screens.View().DesignStudio
}

// SaveDesign 把设计存入衣橱；没有图片或已保存时不做任何事
func (s *ScreenService) SaveDesign(ctx context.Context, sess *Session) (state.Snapshot, DesignStudioScreen) {
	sess.Screens.mu.Lock()
	defer sess.Screens.mu.Unlock()

	studio := &sess.Screens.DesignStudio
	if studio.Result == nil || studio.Result.Image == "" || studio.Saved {
		return sess.Store.Snapshot(), sess.Screens.viewLocked().DesignStudio
	}

	item := models.WardrobeItem{
		ID:        s.newItemID("ai-", sess.Store.Snapshot().State),
		Title:     DesignTitle(studio.Prompt),
		Category:  models.CategoryTops,
		ImageURL:  studio.Result.Image,
		Tags:      []string{"#AI-Design", "#HighFashion", "#Prototyping"},
		Color:     "Visionary",
		Fabric:    "Neural-Mesh",
		DateAdded: s.now().UTC(),
		Brand:     "Design Lab Pro",
	}
	snap := s.sessions.Dispatch(ctx, sess, state.AddItem{Item: item})
	studio.Saved = true
	return snap, sess.Screens.viewLocked().DesignStudio
}

// ---------------------------------------------------------------- eco lab

// GeneratePrototype 根据概念生成可持续原型图；概念为空时不做任何事
func (s *ScreenService) GeneratePrototype(ctx context.Context, sess *Session, concept string) EcoLabScreen {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return sess.Screens.View().EcoLab
	}

	token, ok := s.begin(sess, ScreenEcoLab, func(sc *Screens) bool {
		if sc.EcoLab.Status == StatusWorking {
			return false
		}
		sc.EcoLab = EcoLabScreen{Status: StatusWorking, Concept: concept}
		return true
	})
	if !ok {
		return sess.Screens.View().EcoLab
	}

	result := s.analysis.GeneratePrototype(ctx, concept)

	s.finish(sess, ScreenEcoLab, token, func(sc *Screens) {
		sc.EcoLab = EcoLabScreen{Status: StatusDone, Concept: concept, Image: result.Value, Source: result.Source}
	})
	return sess.Screens.View().EcoLab
}

// ---------------------------------------------------------------- impact

// Impact 可持续性报告
func (s *ScreenService) Impact(sess *Session) ImpactReport {
	st := sess.Store.Snapshot().State
	return BuildImpactReport(st.Wardrobe, st.MoneySaved)
}
