package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/VogueVault/internal/catalog"
	"github.com/Corphon/VogueVault/internal/config"
	"github.com/Corphon/VogueVault/internal/di"
	"github.com/Corphon/VogueVault/internal/llm"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/services"
	"github.com/Corphon/VogueVault/internal/session"
	"github.com/Corphon/VogueVault/internal/state"
	"github.com/Corphon/VogueVault/internal/utils"
	"github.com/gin-gonic/gin"
)

// unavailableProvider 模拟一个总是失败的远程服务
type unavailableProvider struct{}

func (unavailableProvider) Initialize(map[string]string) error { return nil }
func (unavailableProvider) GetName() string                    { return "google" }
func (unavailableProvider) GetSupportedModels() []string       { return nil }
func (unavailableProvider) GenerateContent(context.Context, llm.ContentRequest) (*llm.ContentResponse, error) {
	return nil, errors.New("upstream unavailable")
}

func init() {
	llm.Register("google", func() llm.Provider { return unavailableProvider{} })
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type stateData struct {
	Version   uint64      `json:"version"`
	Title     string      `json:"title"`
	State     state.State `json:"state"`
	SessionID string      `json:"session_id"`
}

// newTestRouter 以演示模式（无凭据、无延迟）装配全部服务
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	base := &config.Config{
		Port:        "0",
		DataDir:     dir,
		LogDir:      dir,
		HTTPTimeout: time.Second,
	}
	if err := config.InitConfig(base); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	container := di.GetContainer()
	container.Clear()

	metrics := utils.NewAPIMetrics(utils.NewMetricsCollector(), utils.NewLogger(io.Discard, utils.ERROR))
	llmService := services.NewLLMService(services.DefaultModels())
	configService := services.NewConfigService()
	configService.SubscribeToChanges(llmService)
	analysis := services.NewAnalysisService(llmService, 0, metrics)
	sessions := services.NewSessionService(nil, metrics)
	screens := services.NewScreenService(sessions, analysis, catalog.MockWeather(), metrics)
	signer, err := session.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	container.Register("metrics", metrics)
	container.Register("llm", llmService)
	container.Register("config", configService)
	container.Register("sessions", sessions)
	container.Register("screens", screens)
	container.Register("signer", signer)

	r, err := SetupRouter()
	if err != nil {
		t.Fatalf("SetupRouter: %v", err)
	}
	t.Cleanup(func() {
		ShutdownRouter()
		sessions.Stop()
		container.Clear()
	})
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, w.Body.String(), err)
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
}

// startSession 打开一个会话并返回令牌
func startSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w, env := doRequest(t, r, http.MethodGet, "/api/state", "", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("GET /api/state = %d %s", w.Code, w.Body.String())
	}
	token := w.Header().Get(headerSessionToken)
	if token == "" {
		t.Fatal("expected a session token header")
	}
	return token
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{200, 30, 30, 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealthNeedsNoSession(t *testing.T) {
	r := newTestRouter(t)

	w, env := doRequest(t, r, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(headerSessionToken) != "" {
		t.Error("health should not open a session")
	}

	var data map[string]interface{}
	decode(t, env.Data, &data)
	if data["needs_key"] != true {
		t.Errorf("needs_key = %v, want true", data["needs_key"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestSessionIssuedAndReused(t *testing.T) {
	r := newTestRouter(t)

	w, env := doRequest(t, r, http.MethodGet, "/api/state", "", "")
	token := w.Header().Get(headerSessionToken)
	var first stateData
	decode(t, env.Data, &first)
	if len(first.State.Wardrobe) != 7 {
		t.Fatalf("wardrobe = %d items, want 7", len(first.State.Wardrobe))
	}
	if first.State.View != models.ViewDashboard {
		t.Errorf("initial view = %q", first.State.View)
	}

	var cookieFound bool
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value == token {
			cookieFound = true
		}
	}
	if !cookieFound {
		t.Error("expected session cookie")
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/state", "", token)
	var second stateData
	decode(t, env.Data, &second)
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %s -> %s", first.SessionID, second.SessionID)
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/state", "", "not-a-token")
	var third stateData
	decode(t, env.Data, &third)
	if third.SessionID == first.SessionID {
		t.Error("invalid token should start a new session")
	}
}

func TestNavigate(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	w, env := doRequest(t, r, http.MethodPost, "/api/navigate", `{"view":"mixer"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("navigate = %d %s", w.Code, w.Body.String())
	}
	var data stateData
	decode(t, env.Data, &data)
	if data.State.View != models.ViewMixer {
		t.Errorf("view = %q, want mixer", data.State.View)
	}
	if data.Title != models.ViewMixer.Title() {
		t.Errorf("title = %q", data.Title)
	}

	w, env = doRequest(t, r, http.MethodPost, "/api/navigate", `{"view":"wardrobe-2000"}`, token)
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrorValidation {
		t.Errorf("unknown view = %d %+v", w.Code, env.Error)
	}

	w, env = doRequest(t, r, http.MethodPost, "/api/navigate", `{"view":`, token)
	if w.Code != http.StatusBadRequest || env.Error.Code != ErrorBadRequest {
		t.Errorf("bad JSON = %d %+v", w.Code, env.Error)
	}
}

func TestVaultFilterAndBrand(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodGet, "/api/vault?category=Tops&sort=wear-asc", "", token)
	var vault services.VaultView
	decode(t, env.Data, &vault)
	if vault.Total != 4 {
		t.Fatalf("tops = %d, want 4", vault.Total)
	}
	if vault.Items[0].Title != "Silk Blouse" {
		t.Errorf("least worn top = %q", vault.Items[0].Title)
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/vault?search=BOOT", "", token)
	decode(t, env.Data, &vault)
	if vault.Total != 1 || vault.Items[0].ID != "3" {
		t.Errorf("search result = %+v", vault.Items)
	}

	w, env := doRequest(t, r, http.MethodPut, "/api/vault/items/3/brand", `{"brand":"  Acne  "}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("brand = %d %s", w.Code, w.Body.String())
	}
	var data stateData
	decode(t, env.Data, &data)
	item, found := data.State.FindItem("3")
	if !found || item.Brand != "Acne" {
		t.Errorf("brand not updated: %+v", item)
	}

	w, env = doRequest(t, r, http.MethodPut, "/api/vault/items/999/brand", `{"brand":"x"}`, token)
	if w.Code != http.StatusNotFound || env.Error.Code != ErrorNotFound {
		t.Errorf("unknown item = %d %+v", w.Code, env.Error)
	}
}

func TestStageAndToggleOutfit(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodPost, "/api/vault/items/6/stage", "", token)
	var data stateData
	decode(t, env.Data, &data)
	if data.State.View != models.ViewOrchestrator || !data.State.InOutfit("6") {
		t.Errorf("stage: view %q outfit %v", data.State.View, data.State.Outfit)
	}

	for i := 0; i < 2; i++ {
		_, env = doRequest(t, r, http.MethodPost, "/api/orchestrator/toggle/3", "", token)
	}
	decode(t, env.Data, &data)
	if data.State.InOutfit("3") {
		t.Error("toggling twice should remove the item")
	}

	w, _ := doRequest(t, r, http.MethodPost, "/api/orchestrator/toggle/nope", "", token)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown toggle = %d", w.Code)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/orchestrator/clear", "", token)
	decode(t, env.Data, &data)
	if len(data.State.Outfit) != 0 {
		t.Errorf("outfit after clear = %v", data.State.Outfit)
	}
}

func TestSuggestMissingPiece(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodPost, "/api/orchestrator/suggest-missing", "", token)
	var data struct {
		State state.State          `json:"state"`
		Added *models.WardrobeItem `json:"added"`
	}
	decode(t, env.Data, &data)
	if data.Added == nil || data.Added.Category != models.CategoryTops {
		t.Fatalf("added = %+v, want a top", data.Added)
	}
	if len(data.State.Outfit) != 1 {
		t.Errorf("outfit = %d items", len(data.State.Outfit))
	}
}

func TestDiscardPurchase(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodPost, "/api/gatekeeper/discard", `{"amount":75}`, token)
	var data stateData
	decode(t, env.Data, &data)
	if data.State.MoneySaved != 1325 {
		t.Errorf("money saved = %v, want 1325", data.State.MoneySaved)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/gatekeeper/discard", `{"amount":-10}`, token)
	decode(t, env.Data, &data)
	if data.State.MoneySaved != 1325 {
		t.Errorf("negative discard changed savings to %v", data.State.MoneySaved)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/gatekeeper/discard", "", token)
	decode(t, env.Data, &data)
	gained := data.State.MoneySaved - 1325
	if gained < 45 || gained > 120 {
		t.Errorf("random discard added %v, want 45..120", gained)
	}
}

func TestUploadJSONImage(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	body, _ := json.Marshal(ImageRequest{Image: pngDataURL(t)})
	w, env := doRequest(t, r, http.MethodPost, "/api/vault/upload", string(body), token)
	if w.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", w.Code, w.Body.String())
	}
	var screen services.VaultScreen
	decode(t, env.Data, &screen)
	if screen.Status != services.StatusDone || screen.Source != services.SourceMock {
		t.Errorf("screen = %+v", screen)
	}
	if screen.LastAdded == nil || !strings.HasPrefix(screen.LastAdded.ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("last added = %+v", screen.LastAdded)
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/state", "", token)
	var data stateData
	decode(t, env.Data, &data)
	if len(data.State.Wardrobe) != 8 || data.State.Wardrobe[0].ID != screen.LastAdded.ID {
		t.Errorf("new item should be first of 8, got %d items", len(data.State.Wardrobe))
	}
}

func TestUploadMultipartImage(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	raw := strings.TrimPrefix(pngDataURL(t), "data:image/png;base64,")
	pngBytes, _ := base64.StdEncoding.DecodeString(raw)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "shirt.png")
	fw.Write(pngBytes)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/vault/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("multipart upload = %d %s", w.Code, w.Body.String())
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	var screen services.VaultScreen
	decode(t, env.Data, &screen)
	if screen.LastAdded == nil {
		t.Error("expected an added item")
	}
}

func TestUploadMissingOrInvalidImage(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	w, env := doRequest(t, r, http.MethodPost, "/api/vault/upload", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("missing image = %d", w.Code)
	}
	var screen services.VaultScreen
	decode(t, env.Data, &screen)
	if screen.Status != services.StatusIdle {
		t.Errorf("missing image should be a no-op, status %q", screen.Status)
	}

	w, env = doRequest(t, r, http.MethodPost, "/api/vault/upload", `{"image":"data:image/png;base64,bm90IGFuIGltYWdl"}`, token)
	if w.Code != http.StatusBadRequest || env.Error.Code != ErrorImageInvalid {
		t.Errorf("invalid image = %d %+v", w.Code, env.Error)
	}
}

func TestGatekeeperScanInDemoMode(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	body, _ := json.Marshal(ImageRequest{Image: pngDataURL(t)})
	_, env := doRequest(t, r, http.MethodPost, "/api/gatekeeper/scan", string(body), token)
	var screen services.GatekeeperScreen
	decode(t, env.Data, &screen)
	if screen.Status != services.StatusDone || screen.Verdict == nil {
		t.Errorf("scan screen = %+v", screen)
	}
}

func TestMixerFlow(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	img := pngDataURL(t)
	body, _ := json.Marshal(ImagesRequest{Images: []string{img, img, img, img}})
	_, env := doRequest(t, r, http.MethodPost, "/api/mixer/images", string(body), token)
	var screen services.MixerScreen
	decode(t, env.Data, &screen)
	if len(screen.Images) != services.MaxMixerImages {
		t.Fatalf("mixer holds %d images, want %d", len(screen.Images), services.MaxMixerImages)
	}

	_, env = doRequest(t, r, http.MethodDelete, "/api/mixer/images/"+screen.Images[0].ID, "", token)
	decode(t, env.Data, &screen)
	if len(screen.Images) != 2 {
		t.Fatalf("after remove = %d images", len(screen.Images))
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/mixer/mix", "", token)
	decode(t, env.Data, &screen)
	if screen.Status != services.StatusDone || screen.Result == nil {
		t.Fatalf("mix screen = %+v", screen)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/mixer/save", "", token)
	var saved struct {
		State  state.State          `json:"state"`
		Screen services.MixerScreen `json:"screen"`
	}
	decode(t, env.Data, &saved)
	// 演示模式的融合结果没有图片，保存不做任何事
	if saved.Screen.Saved || len(saved.State.Wardrobe) != 7 {
		t.Errorf("save without an image = %+v, %d items", saved.Screen, len(saved.State.Wardrobe))
	}
}

func TestDesignStudioNeedsKey(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodPost, "/api/design/generate", `{"prompt":"asymmetric trench coat"}`, token)
	var screen services.DesignStudioScreen
	decode(t, env.Data, &screen)
	if !screen.NeedsKey {
		t.Errorf("design without a key should ask for one: %+v", screen)
	}

	_, env = doRequest(t, r, http.MethodPost, "/api/design/generate", `{"prompt":"   "}`, token)
	decode(t, env.Data, &screen)
	if screen.Status == services.StatusWorking {
		t.Error("empty prompt should not start work")
	}
}

func TestEcoLabAndImpact(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodPost, "/api/eco-lab/generate", `{"concept":"hemp parka"}`, token)
	var eco services.EcoLabScreen
	decode(t, env.Data, &eco)
	if eco.Concept != "hemp parka" || eco.Status != services.StatusDone {
		t.Errorf("eco screen = %+v", eco)
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/impact", "", token)
	var report services.ImpactReport
	decode(t, env.Data, &report)
	if report.EcoScore != 57 || report.Grade != "C" {
		t.Errorf("impact = %d %s, want 57 C", report.EcoScore, report.Grade)
	}
}

func TestDashboard(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	_, env := doRequest(t, r, http.MethodGet, "/api/dashboard", "", token)
	var dash services.DashboardView
	decode(t, env.Data, &dash)
	if dash.ItemCount != 7 || dash.MoneySaved != 1250 {
		t.Errorf("dashboard = %+v", dash)
	}
	if dash.Weather.Condition != "Rainy" {
		t.Errorf("weather = %+v", dash.Weather)
	}
	if len(dash.LookOfTheDay) != 3 {
		t.Errorf("rainy look should include outerwear, got %d items", len(dash.LookOfTheDay))
	}
}

func TestResetScreen(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	w, _ := doRequest(t, r, http.MethodPost, "/api/screens/gatekeeper/reset", "", token)
	if w.Code != http.StatusOK {
		t.Errorf("reset gatekeeper = %d", w.Code)
	}
	w, env := doRequest(t, r, http.MethodPost, "/api/screens/attic/reset", "", token)
	if w.Code != http.StatusBadRequest || env.Error.Code != ErrorValidation {
		t.Errorf("reset unknown = %d %+v", w.Code, env.Error)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	r := newTestRouter(t)

	_, env := doRequest(t, r, http.MethodGet, "/api/settings/status", "", "")
	var status services.CredentialStatus
	decode(t, env.Data, &status)
	if !status.NeedsKey {
		t.Fatalf("status = %+v, want needs_key", status)
	}
	if len(status.Providers) == 0 || status.Providers[0] != "google" {
		t.Errorf("registered providers not listed: %v", status.Providers)
	}

	w, env := doRequest(t, r, http.MethodPut, "/api/settings/credential", `{"api_key":"AIza-test-9876"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("set credential = %d %s", w.Code, w.Body.String())
	}
	decode(t, env.Data, &status)
	if status.NeedsKey || status.KeyHint != "…9876" {
		t.Errorf("status after set = %+v", status)
	}
	if strings.Contains(w.Body.String(), "AIza-test-9876") {
		t.Error("response must not echo the credential")
	}

	w, _ = doRequest(t, r, http.MethodPut, "/api/settings/credential", `{"api_key":"AIza test"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("whitespace key = %d", w.Code)
	}

	_, env = doRequest(t, r, http.MethodPut, "/api/settings/credential", `{"api_key":""}`, "")
	decode(t, env.Data, &status)
	if !status.NeedsKey {
		t.Error("clearing the key should require one again")
	}

	_, env = doRequest(t, r, http.MethodGet, "/api/settings/history", "", "")
	var history []services.ConfigChangeRecord
	decode(t, env.Data, &history)
	if len(history) != 2 || history[0].Action != "set" || history[1].Action != "cleared" {
		t.Errorf("history = %+v", history)
	}
}

func TestAnalysisRateLimit(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	for i := 0; i < analysisPerMinute; i++ {
		w, _ := doRequest(t, r, http.MethodPost, "/api/orchestrator/ask", "", token)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w, env := doRequest(t, r, http.MethodPost, "/api/orchestrator/ask", "", token)
	if w.Code != http.StatusTooManyRequests || env.Error.Code != ErrorRateLimited {
		t.Errorf("over limit = %d %+v", w.Code, env.Error)
	}

	// 非分析接口不受限
	w, _ = doRequest(t, r, http.MethodGet, "/api/dashboard", "", token)
	if w.Code != http.StatusOK {
		t.Errorf("dashboard = %d", w.Code)
	}
}

func TestAnalysisRateLimitPerClient(t *testing.T) {
	r := newTestRouter(t)

	// 每个请求都不带令牌，各自得到一个新会话
	for i := 0; i < clientAnalysisPerMinute; i++ {
		w, _ := doRequest(t, r, http.MethodPost, "/api/orchestrator/ask", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w, env := doRequest(t, r, http.MethodPost, "/api/orchestrator/ask", "", "")
	if w.Code != http.StatusTooManyRequests || env.Error.Code != ErrorRateLimited {
		t.Errorf("new sessions from one client should share a limit, got %d %+v", w.Code, env.Error)
	}
}

func TestDeleteSessionStartsOver(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)

	doRequest(t, r, http.MethodPost, "/api/gatekeeper/discard", `{"amount":50}`, token)
	w, _ := doRequest(t, r, http.MethodDelete, "/api/session", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}

	_, env := doRequest(t, r, http.MethodGet, "/api/state", "", token)
	var data stateData
	decode(t, env.Data, &data)
	if data.State.MoneySaved != 1250 {
		t.Errorf("money saved after delete = %v, want fresh 1250", data.State.MoneySaved)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	token := startSession(t, r)
	doRequest(t, r, http.MethodGet, "/api/dashboard", "", token)

	_, env := doRequest(t, r, http.MethodGet, "/api/metrics", "", "")
	var data map[string]interface{}
	decode(t, env.Data, &data)
	for _, key := range []string{"counters", "gauges", "histograms", "sessions", "websocket"} {
		if _, ok := data[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
	if data["sessions"].(float64) != 1 {
		t.Errorf("sessions = %v", data["sessions"])
	}
}
