// internal/api/handlers.go
package api

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Corphon/VogueVault/internal/errors"
	"github.com/Corphon/VogueVault/internal/imaging"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/state"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	SessionService *services.SessionService // 会话服务
	ScreenService  *services.ScreenService  // 屏幕控制器
	LLMService     *services.LLMService     // 远程生成服务
	ConfigService  *services.ConfigService  // 配置服务
	Metrics        *utils.APIMetrics        // 指标
	WebSockets     *WebSocketManager        // WebSocket 管理器
	Response       *ResponseHelper          // 响应助手
	startedAt      time.Time
}

// NewHandler 创建API处理器
func NewHandler(
	sessionService *services.SessionService,
	screenService *services.ScreenService,
	llmService *services.LLMService,
	configService *services.ConfigService,
	metrics *utils.APIMetrics,
	manager *WebSocketManager,
) *Handler {
	return &Handler{
		SessionService: sessionService,
		ScreenService:  screenService,
		LLMService:     llmService,
		ConfigService:  configService,
		Metrics:        metrics,
		WebSockets:     manager,
		Response:       NewResponseHelper(),
		startedAt:      time.Now(),
	}
}

// ------------------------------------------------
// 请求结构

// NavigateRequest 切换屏幕
type NavigateRequest struct {
	View string `json:"view"`
}

// BrandRequest 修改品牌
type BrandRequest struct {
	Brand string `json:"brand"`
}

// ImageRequest JSON 形式的单张图片（data URL 或 base64）
type ImageRequest struct {
	Image string `json:"image"`
}

// ImagesRequest JSON 形式的多张图片
type ImagesRequest struct {
	Images []string `json:"images"`
}

// DiscardRequest 放弃购买；amount 省略时随机
type DiscardRequest struct {
	Amount *float64 `json:"amount"`
}

// DesignRequest 设计工作室生成
type DesignRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Reference   string `json:"reference"`
}

// ConceptRequest 可持续原型
type ConceptRequest struct {
	Concept string `json:"concept"`
}

// CredentialRequest 设置服务凭据；空字符串表示清除
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

// ------------------------------------------------
// 辅助函数

// snapshotData 共享状态的响应体
func snapshotData(snap state.Snapshot) gin.H {
	return gin.H{
		"version": snap.Version,
		"title":   snap.State.View.Title(),
		"state":   snap.State,
	}
}

// currentSession 获取会话；中间件保证存在
func (h *Handler) currentSession(c *gin.Context) (*services.Session, bool) {
	sess := sessionFrom(c)
	if sess == nil {
		h.Response.NotFound(c, "session")
		return nil, false
	}
	return sess, true
}

// notifyScreens 屏幕局部状态变化后推送给该会话的其他连接
func (h *Handler) notifyScreens(sess *services.Session) {
	if h.WebSockets != nil {
		h.WebSockets.BroadcastToSession(sess.ID, screensMessage(sess))
	}
}

// bindOptionalJSON 空请求体视为零值；格式错误返回 false
func (h *Handler) bindOptionalJSON(c *gin.Context, out interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return false
	}
	return true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func processUpload(fh *multipart.FileHeader) (*imaging.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("读取上传文件失败", err)
	}
	defer f.Close()

	img, err := imaging.Process(f)
	if err != nil {
		return nil, apperrors.NewValidationError("无法识别的图片", err)
	}
	return img, nil
}

// readImage 读取单张图片：multipart 的 image 字段或 JSON 的 image 字段；未提供时返回 nil
func (h *Handler) readImage(c *gin.Context, field string) (*imaging.Image, bool) {
	if isMultipart(c) {
		fh, err := c.FormFile(field)
		if err != nil {
			return nil, true
		}
		img, err := processUpload(fh)
		if err != nil {
			h.Response.Error(c, http.StatusBadRequest, ErrorImageInvalid, "无法识别的图片", err.Error())
			return nil, false
		}
		return img, true
	}

	var req ImageRequest
	if !h.bindOptionalJSON(c, &req) {
		return nil, false
	}
	return h.decodeImage(c, req.Image)
}

func (h *Handler) decodeImage(c *gin.Context, raw string) (*imaging.Image, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	img, err := imaging.Decode(raw)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorImageInvalid, "无法识别的图片", err.Error())
		return nil, false
	}
	return img, true
}

// readImages 读取多张图片（混搭器）
func (h *Handler) readImages(c *gin.Context) ([]imaging.Image, bool) {
	var images []imaging.Image

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, true
		}
		for _, fh := range form.File["images"] {
			img, err := processUpload(fh)
			if err != nil {
				h.Response.Error(c, http.StatusBadRequest, ErrorImageInvalid, "无法识别的图片", err.Error())
				return nil, false
			}
			images = append(images, *img)
		}
		return images, true
	}

	var req ImagesRequest
	if !h.bindOptionalJSON(c, &req) {
		return nil, false
	}
	for _, raw := range req.Images {
		img, ok := h.decodeImage(c, raw)
		if !ok {
			return nil, false
		}
		if img != nil {
			images = append(images, *img)
		}
	}
	return images, true
}

// ------------------------------------------------
// 健康与指标

// Health 服务状态
func (h *Handler) Health(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":    "ok",
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"needs_key": !h.LLMService.IsReady(),
		"sessions":  h.SessionService.Count(),
	})
}

// GetMetrics 指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	data := h.Metrics.Collector().GetMetrics()
	data["sessions"] = h.SessionService.Count()
	if n, ok := h.SessionService.SnapshotCount(c.Request.Context()); ok {
		data["snapshots"] = n
	}
	if h.WebSockets != nil {
		data["websocket"] = h.WebSockets.GetStatus()
	}
	h.Response.Success(c, data)
}

// ------------------------------------------------
// 设置

// GetSettingsStatus 凭据状态
func (h *Handler) GetSettingsStatus(c *gin.Context) {
	h.Response.Success(c, h.ConfigService.Status(h.LLMService))
}

// UpdateCredential 运行时设置服务凭据
func (h *Handler) UpdateCredential(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ConfigService.UpdateCredential(req.APIKey, "web_api"); err != nil {
		h.Response.HandleError(c, err)
		return
	}

	status := h.ConfigService.Status(h.LLMService)
	if h.WebSockets != nil {
		h.WebSockets.Broadcast(map[string]interface{}{
			"type":      "settings",
			"needs_key": status.NeedsKey,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
	h.Response.Success(c, status, "凭据已更新")
}

// GetSettingsHistory 凭据变更记录
func (h *Handler) GetSettingsHistory(c *gin.Context) {
	h.Response.Success(c, h.ConfigService.GetChangeHistory(20))
}

// ------------------------------------------------
// 会话与导航

// GetState 完整状态
func (h *Handler) GetState(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	data := snapshotData(sess.Store.Snapshot())
	data["session_id"] = sess.ID
	data["screens"] = sess.Screens.View()
	h.Response.Success(c, data)
}

// DeleteSession 丢弃当前会话
func (h *Handler) DeleteSession(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if err := h.SessionService.Delete(c.Request.Context(), sess.ID); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	h.Response.Success(c, nil, "会话已删除")
}

// Navigate 切换屏幕
func (h *Handler) Navigate(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	snap, err := h.ScreenService.Navigate(c.Request.Context(), sess, req.View)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, snapshotData(snap))
}

// ResetScreen 重置屏幕
func (h *Handler) ResetScreen(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	if err := h.ScreenService.Reset(sess, c.Param("screen")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.notifyScreens(sess)
	h.Response.Success(c, sess.Screens.View())
}

// ------------------------------------------------
// 仪表盘

// GetDashboard 仪表盘
func (h *Handler) GetDashboard(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.ScreenService.Dashboard(sess))
}

// ------------------------------------------------
// 衣橱

// GetVault 筛选后的衣橱
func (h *Handler) GetVault(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.ScreenService.Vault(sess, services.VaultQuery{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
	}))
}

// UploadItem 识别并添加单品
func (h *Handler) UploadItem(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	img, ok := h.readImage(c, "image")
	if !ok {
		return
	}

	screen := h.ScreenService.Upload(c.Request.Context(), sess, img)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// UpdateBrand 修改品牌
func (h *Handler) UpdateBrand(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req BrandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	snap, err := h.ScreenService.SetBrand(c.Request.Context(), sess, c.Param("item_id"), req.Brand)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, snapshotData(snap))
}

// StageItem 加入搭配并切换到搭配器
func (h *Handler) StageItem(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	snap, err := h.ScreenService.StageForOutfit(c.Request.Context(), sess, c.Param("item_id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, snapshotData(snap))
}

// ------------------------------------------------
// 搭配器

// ToggleOutfit 加入或移出搭配
func (h *Handler) ToggleOutfit(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	snap, err := h.ScreenService.ToggleOutfit(c.Request.Context(), sess, c.Param("item_id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, snapshotData(snap))
}

// SuggestMissingPiece 自动补齐搭配
func (h *Handler) SuggestMissingPiece(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	snap, item := h.ScreenService.SuggestMissingPiece(c.Request.Context(), sess)
	data := snapshotData(snap)
	data["added"] = item
	h.Response.Success(c, data)
}

// ClearOutfit 清空搭配
func (h *Handler) ClearOutfit(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, snapshotData(h.ScreenService.ClearOutfit(c.Request.Context(), sess)))
}

// AskStylist 请求造型建议
func (h *Handler) AskStylist(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	screen := h.ScreenService.AskStylist(c.Request.Context(), sess)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// ------------------------------------------------
// 守门人

// ScanPurchase 判断候选购买
func (h *Handler) ScanPurchase(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	img, ok := h.readImage(c, "image")
	if !ok {
		return
	}

	screen := h.ScreenService.Scan(c.Request.Context(), sess, img)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// DiscardPurchase 放弃购买
func (h *Handler) DiscardPurchase(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req DiscardRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	snap, screen := h.ScreenService.Discard(c.Request.Context(), sess, req.Amount)
	h.notifyScreens(sess)
	data := snapshotData(snap)
	data["screen"] = screen
	h.Response.Success(c, data)
}

// ------------------------------------------------
// 混搭器

// AddMixerImages 添加参考图
func (h *Handler) AddMixerImages(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	images, ok := h.readImages(c)
	if !ok {
		return
	}

	screen := h.ScreenService.AddMixerImages(sess, images)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// RemoveMixerImage 移除参考图
func (h *Handler) RemoveMixerImage(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	screen := h.ScreenService.RemoveMixerImage(sess, c.Param("image_id"))
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// Mix 融合参考图
func (h *Handler) Mix(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	screen := h.ScreenService.Mix(c.Request.Context(), sess)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// SaveMix 保存融合结果
func (h *Handler) SaveMix(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	snap, screen := h.ScreenService.SaveMix(c.Request.Context(), sess)
	h.notifyScreens(sess)
	data := snapshotData(snap)
	data["screen"] = screen
	h.Response.Success(c, data)
}

// ------------------------------------------------
// 设计工作室

// GenerateDesign 高质量设计生成
func (h *Handler) GenerateDesign(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req DesignRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	reference, ok := h.decodeImage(c, req.Reference)
	if !ok {
		return
	}

	screen := h.ScreenService.GenerateDesign(c.Request.Context(), sess, req.Prompt, req.AspectRatio, reference)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// SaveDesign 保存设计
func (h *Handler) SaveDesign(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	snap, screen := h.ScreenService.SaveDesign(c.Request.Context(), sess)
	h.notifyScreens(sess)
	data := snapshotData(snap)
	data["screen"] = screen
	h.Response.Success(c, data)
}

// GetAspectRatios 支持的画幅
func (h *Handler) GetAspectRatios(c *gin.Context) {
	h.Response.Success(c, services.AspectRatios)
}

// ------------------------------------------------
// 可持续性

// GeneratePrototype 生成可持续原型
func (h *Handler) GeneratePrototype(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req ConceptRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	screen := h.ScreenService.GeneratePrototype(c.Request.Context(), sess, req.Concept)
	h.notifyScreens(sess)
	h.Response.Success(c, screen)
}

// GetImpact 可持续性报告
func (h *Handler) GetImpact(c *gin.Context) {
	sess, ok := h.currentSession(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.ScreenService.Impact(sess))
}

// GetCategories 类别与屏幕列表，供客户端渲染
func (h *Handler) GetCategories(c *gin.Context) {
	views := make([]gin.H, 0, len(models.Views()))
	for _, v := range models.Views() {
		views = append(views, gin.H{"id": v, "title": v.Title()})
	}
	h.Response.Success(c, gin.H{
		"categories": models.Categories(),
		"views":      views,
		"screens":    services.ResettableScreens,
	})
}
