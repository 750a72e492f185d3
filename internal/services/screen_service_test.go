package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/VogueVault/internal/catalog"
	"github.com/Corphon/VogueVault/internal/imaging"
	"github.com/Corphon/VogueVault/internal/llm"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/utils"
)

type screenFixture struct {
	screens   *ScreenService
	sessions  *SessionService
	sess      *Session
	collector *utils.MetricsCollector
}

// newScreenFixture provider 为 nil 时走演示模式
func newScreenFixture(t *testing.T, provider llm.Provider) *screenFixture {
	t.Helper()
	metrics, collector := quietMetrics()

	llmService := NewEmptyLLMService()
	if provider != nil {
		llmService = NewLLMServiceWithProvider(provider, DefaultModels())
	}
	analysis := NewAnalysisService(llmService, 0, metrics)
	sessions := NewSessionService(nil, metrics)
	screens := NewScreenService(sessions, analysis, catalog.MockWeather(), metrics)
	screens.randIntN = func(int) int { return 0 }

	return &screenFixture{
		screens:   screens,
		sessions:  sessions,
		sess:      sessions.Create(context.Background(), "test-session"),
		collector: collector,
	}
}

func TestNavigate(t *testing.T) {
	f := newScreenFixture(t, nil)

	snap, err := f.screens.Navigate(context.Background(), f.sess, "impact")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if snap.State.View != models.ViewImpact {
		t.Errorf("expected impact view, got %s", snap.State.View)
	}

	if _, err := f.screens.Navigate(context.Background(), f.sess, "closet"); err == nil {
		t.Error("unknown view should be rejected")
	}
	if f.sess.Store.Snapshot().State.View != models.ViewImpact {
		t.Error("rejected navigation must not change the view")
	}
}

func TestDashboard(t *testing.T) {
	f := newScreenFixture(t, nil)

	d := f.screens.Dashboard(f.sess)
	if !d.NeedsKey || d.ItemCount != 7 || d.MoneySaved != 1250 {
		t.Errorf("unexpected dashboard %+v", d)
	}
	// Rainy: top + bottom + the first outerwear
	if len(d.LookOfTheDay) != 3 || d.LookOfTheDay[2].ID != "1" {
		t.Errorf("unexpected look of the day %+v", d.LookOfTheDay)
	}
}

func TestLookOfTheDaySunnySkipsOuterwear(t *testing.T) {
	look := LookOfTheDay(catalog.SeedWardrobe(), "Sunny", func(int) int { return 0 })
	if len(look) != 2 || look[0].Category != models.CategoryTops || look[1].Category != models.CategoryBottoms {
		t.Errorf("unexpected look %+v", look)
	}
	if got := LookOfTheDay(nil, "Rainy", func(int) int { return 0 }); len(got) != 0 {
		t.Errorf("empty wardrobe should give an empty look, got %+v", got)
	}
}

func TestFilterWardrobe(t *testing.T) {
	items := catalog.SeedWardrobe()

	v := FilterWardrobe(items, VaultQuery{})
	if v.Filter != "All" || v.Sort != SortWearDesc || v.Items[0].ID != "6" {
		t.Errorf("default view should sort by wear count: %+v", v.Items[0])
	}

	v = FilterWardrobe(items, VaultQuery{Category: "tops", Search: "OXFORD"})
	if len(v.Items) != 1 || v.Items[0].ID != "5" || v.Filter != "Tops" {
		t.Errorf("unexpected filtered view %+v", v)
	}

	v = FilterWardrobe(items, VaultQuery{Sort: SortWearAsc})
	if v.Items[0].ID != "4" {
		t.Errorf("expected least-worn first, got %s", v.Items[0].ID)
	}

	v = FilterWardrobe(items, VaultQuery{Category: "Hats"})
	if v.Filter != "All" || len(v.Items) != len(items) {
		t.Error("unknown category should show everything")
	}
}

func TestUploadMockAddsItem(t *testing.T) {
	f := newScreenFixture(t, nil)

	screen := f.screens.Upload(context.Background(), f.sess, &testImage)
	if screen.Status != StatusDone || screen.Source != SourceMock || screen.LastAdded == nil {
		t.Fatalf("unexpected vault screen %+v", screen)
	}

	st := f.sess.Store.Snapshot().State
	if len(st.Wardrobe) != 8 {
		t.Fatalf("expected 8 items, got %d", len(st.Wardrobe))
	}
	added := st.Wardrobe[0]
	if added.Title != "Scanned Garment" || added.WearCount != 0 || added.Cost != 0 || !imaging.IsDataURL(added.ImageURL) {
		t.Errorf("unexpected new item %+v", added)
	}
}

func TestUploadFallbackTagsNew(t *testing.T) {
	f := newScreenFixture(t, &fakeProvider{respond: textResponse("garbage")})

	f.screens.Upload(context.Background(), f.sess, &testImage)
	added := f.sess.Store.Snapshot().State.Wardrobe[0]
	if added.Title != "New Item" || len(added.Tags) != 1 || added.Tags[0] != "#New" {
		t.Errorf("unexpected fallback item %+v", added)
	}
}

func TestUploadNilIsNoop(t *testing.T) {
	f := newScreenFixture(t, nil)
	before := f.sess.Store.Snapshot().Version
	f.screens.Upload(context.Background(), f.sess, nil)
	if f.sess.Store.Snapshot().Version != before {
		t.Error("nil upload should not dispatch")
	}
}

func TestSetBrandAndUnknownItem(t *testing.T) {
	f := newScreenFixture(t, nil)

	snap, err := f.screens.SetBrand(context.Background(), f.sess, "3", "  Dr. Martens ")
	if err != nil {
		t.Fatalf("SetBrand: %v", err)
	}
	item, _ := snap.State.FindItem("3")
	if item.Brand != "Dr. Martens" {
		t.Errorf("brand not trimmed: %q", item.Brand)
	}

	if _, err := f.screens.SetBrand(context.Background(), f.sess, "404", "x"); err == nil {
		t.Error("unknown item should fail")
	}
}

func TestStageAndToggle(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	snap, err := f.screens.StageForOutfit(ctx, f.sess, "2")
	if err != nil {
		t.Fatalf("StageForOutfit: %v", err)
	}
	if snap.State.View != models.ViewOrchestrator || !snap.State.InOutfit("2") {
		t.Errorf("staging should open the orchestrator: %+v", snap.State)
	}

	snap, _ = f.screens.ToggleOutfit(ctx, f.sess, "2")
	if snap.State.InOutfit("2") {
		t.Error("toggle should remove a staged item")
	}
}

func TestMissingPiece(t *testing.T) {
	wardrobe := catalog.SeedWardrobe()
	find := func(id string) models.WardrobeItem {
		for _, it := range wardrobe {
			if it.ID == id {
				return it
			}
		}
		t.Fatalf("no item %s", id)
		return models.WardrobeItem{}
	}

	if item, ok := MissingPiece(wardrobe, nil); !ok || item.ID != "2" {
		t.Errorf("expected first top, got %+v", item)
	}
	if item, ok := MissingPiece(wardrobe, []models.WardrobeItem{find("2")}); !ok || item.ID != "4" {
		t.Errorf("expected the skirt, got %+v", item)
	}
	if _, ok := MissingPiece(wardrobe, []models.WardrobeItem{find("2"), find("4")}); ok {
		t.Error("seed has no accessories, expected nothing")
	}
}

func TestSuggestMissingPieceTogglesIn(t *testing.T) {
	f := newScreenFixture(t, nil)
	snap, item := f.screens.SuggestMissingPiece(context.Background(), f.sess)
	if item == nil || !snap.State.InOutfit(item.ID) {
		t.Errorf("suggested piece should be staged: %+v", item)
	}
}

func TestAskStylist(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	if screen := f.screens.AskStylist(ctx, f.sess); screen.Status != StatusIdle {
		t.Error("empty outfit should not ask")
	}

	f.screens.ToggleOutfit(ctx, f.sess, "6")
	f.screens.ToggleOutfit(ctx, f.sess, "4")
	screen := f.screens.AskStylist(ctx, f.sess)
	if screen.Status != StatusDone || screen.Source != SourceMock || screen.Suggestion == nil {
		t.Fatalf("unexpected orchestrator screen %+v", screen)
	}
	if screen.Context != "The user has selected: Minimalist White Tee, Silver Pleated Skirt. Create a cohesive look." {
		t.Errorf("unexpected context %q", screen.Context)
	}
}

func TestAskStylistSendsOnlyInlineImages(t *testing.T) {
	provider := &fakeProvider{}
	f := newScreenFixture(t, provider)
	ctx := context.Background()

	f.screens.Upload(ctx, f.sess, &testImage)
	uploaded := f.sess.Store.Snapshot().State.Wardrobe[0]
	f.screens.ToggleOutfit(ctx, f.sess, uploaded.ID)
	f.screens.ToggleOutfit(ctx, f.sess, "6")

	f.screens.AskStylist(ctx, f.sess)
	req := provider.lastRequest()
	images := 0
	for _, p := range req.Parts {
		if p.InlineData != nil {
			images++
		}
	}
	if images != 1 {
		t.Errorf("only the uploaded item has inline bytes, sent %d images", images)
	}
}

func TestGatekeeperScanAndDiscard(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	screen := f.screens.Scan(ctx, f.sess, &testImage)
	if screen.Status != StatusDone || screen.Verdict == nil || screen.Verdict.Decision != models.DecisionRejected {
		t.Fatalf("unexpected gatekeeper screen %+v", screen)
	}

	snap, screen := f.screens.Discard(ctx, f.sess, nil)
	if snap.State.MoneySaved != 1250+minDiscardAmount {
		t.Errorf("expected random minimum saving, got %v", snap.State.MoneySaved)
	}
	if screen.Status != StatusIdle || screen.Verdict != nil || screen.LastSaved != minDiscardAmount {
		t.Errorf("discard should reset the scanner: %+v", screen)
	}

	amount := 89.5
	snap, _ = f.screens.Discard(ctx, f.sess, &amount)
	if snap.State.MoneySaved != 1250+minDiscardAmount+89.5 {
		t.Errorf("explicit amount not applied: %v", snap.State.MoneySaved)
	}

	negative := -10.0
	before := f.sess.Store.Snapshot()
	snap, _ = f.screens.Discard(ctx, f.sess, &negative)
	if snap.Version != before.Version || snap.State.MoneySaved != before.State.MoneySaved {
		t.Error("negative discard should be a no-op")
	}
}

func TestStaleResultDiscardedAfterReset(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := &fakeProvider{respond: func(llm.ContentRequest) (*llm.ContentResponse, error) {
		close(started)
		<-release
		return &llm.ContentResponse{Text: `{"decision": "APPROVED", "reason": "late", "carbonImpact": "Low", "potentialOutfits": 4}`}, nil
	}}
	f := newScreenFixture(t, provider)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.screens.Scan(context.Background(), f.sess, &testImage)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never reached the provider")
	}
	if f.sess.Screens.View().Gatekeeper.Status != StatusWorking {
		t.Fatal("scanner should be working")
	}
	if err := f.screens.Reset(f.sess, ScreenGatekeeper); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(release)
	wg.Wait()

	screen := f.sess.Screens.View().Gatekeeper
	if screen.Status != StatusIdle || screen.Verdict != nil {
		t.Errorf("late result should be discarded, got %+v", screen)
	}
	if f.collector.GetCounterValue("analysis_stale_discarded") != 1 {
		t.Error("stale result not counted")
	}
}

func TestResetUnknownScreen(t *testing.T) {
	f := newScreenFixture(t, nil)
	if err := f.screens.Reset(f.sess, "wardrobe"); err == nil {
		t.Error("unknown screen should be rejected")
	}
}

func TestMixerFlow(t *testing.T) {
	provider := &fakeProvider{respond: func(llm.ContentRequest) (*llm.ContentResponse, error) {
		return &llm.ContentResponse{Text: "Hybrid.", Images: []llm.Blob{{MIMEType: "image/png", Data: []byte("mix")}}}, nil
	}}
	f := newScreenFixture(t, provider)
	ctx := context.Background()

	if screen := f.screens.Mix(ctx, f.sess); screen.Status != StatusIdle || provider.calls() != 0 {
		t.Error("mix without references should do nothing")
	}

	screen := f.screens.AddMixerImages(f.sess, []imaging.Image{testImage, testImage, testImage, testImage})
	if len(screen.Images) != MaxMixerImages {
		t.Fatalf("expected %d images, got %d", MaxMixerImages, len(screen.Images))
	}

	screen = f.screens.RemoveMixerImage(f.sess, screen.Images[0].ID)
	if len(screen.Images) != 2 {
		t.Fatalf("expected 2 images after removal, got %d", len(screen.Images))
	}

	screen = f.screens.Mix(ctx, f.sess)
	if screen.Status != StatusDone || screen.Result == nil || screen.Result.Image == "" {
		t.Fatalf("unexpected mixer screen %+v", screen)
	}

	snap, screen := f.screens.SaveMix(ctx, f.sess)
	if !screen.Saved {
		t.Error("mixer should be marked saved")
	}
	added := snap.State.Wardrobe[0]
	if !strings.HasPrefix(added.ID, "mix-") || added.Category != models.CategoryOuterwear || added.Brand != "VogueVault AI" {
		t.Errorf("unexpected saved mix %+v", added)
	}

	again, _ := f.screens.SaveMix(ctx, f.sess)
	if again.Version != snap.Version {
		t.Error("saving twice should be a no-op")
	}
}

func TestSaveMixWithoutImageIsNoop(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	f.screens.AddMixerImages(f.sess, []imaging.Image{testImage, testImage})
	screen := f.screens.Mix(ctx, f.sess)
	if screen.Source != SourceMock || screen.Result.Image != "" {
		t.Fatalf("mock mix should have text only: %+v", screen)
	}
	before := f.sess.Store.Snapshot().Version
	snap, _ := f.screens.SaveMix(ctx, f.sess)
	if snap.Version != before {
		t.Error("a result without an image cannot be saved")
	}
}

func TestDesignStudio(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	screen := f.screens.GenerateDesign(ctx, f.sess, "asymmetric trench in recycled nylon", "4:3", nil)
	if !screen.NeedsKey || screen.Status != StatusIdle {
		t.Errorf("design studio should ask for a credential: %+v", screen)
	}

	provider := &fakeProvider{respond: func(llm.ContentRequest) (*llm.ContentResponse, error) {
		return &llm.ContentResponse{Images: []llm.Blob{{MIMEType: "image/png", Data: []byte("gown")}}}, nil
	}}
	f = newScreenFixture(t, provider)
	screen = f.screens.GenerateDesign(ctx, f.sess, "asymmetric trench in recycled nylon", "4:3", nil)
	if screen.Status != StatusDone || screen.Result == nil || screen.Result.Image == "" {
		t.Fatalf("unexpected design screen %+v", screen)
	}

	snap, screen := f.screens.SaveDesign(ctx, f.sess)
	added := snap.State.Wardrobe[0]
	if !screen.Saved || !strings.HasPrefix(added.ID, "ai-") || added.Title != "asymmetric trench in Concept" {
		t.Errorf("unexpected saved design %+v", added)
	}

	again, screen := f.screens.SaveDesign(ctx, f.sess)
	if !screen.Saved || screen.Result == nil || len(again.State.Wardrobe) != len(snap.State.Wardrobe) {
		t.Errorf("second save should return the saved screen unchanged, got %+v", screen)
	}
}

func TestDesignTitle(t *testing.T) {
	if got := DesignTitle("   "); got != "AI Masterpiece" {
		t.Errorf("got %q", got)
	}
	if got := DesignTitle("neon kimono"); got != "neon kimono Concept" {
		t.Errorf("got %q", got)
	}
}

func TestEcoLab(t *testing.T) {
	f := newScreenFixture(t, nil)
	ctx := context.Background()

	if screen := f.screens.GeneratePrototype(ctx, f.sess, "  "); screen.Status != StatusIdle {
		t.Error("empty concept should do nothing")
	}
	screen := f.screens.GeneratePrototype(ctx, f.sess, "mycelium leather boots")
	if screen.Status != StatusDone || screen.Source != SourceMock || screen.Concept != "mycelium leather boots" {
		t.Errorf("unexpected eco lab screen %+v", screen)
	}
}

func TestImpactReport(t *testing.T) {
	f := newScreenFixture(t, nil)
	report := f.screens.Impact(f.sess)

	// A: boots, tee. B: jacket, oxford.
	if report.EcoScore != 57 || report.RatedGood != 4 || report.TotalItems != 7 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Grade != "C" {
		t.Errorf("expected grade C, got %s", report.Grade)
	}
	if EcoScore(nil) != 0 {
		t.Error("empty wardrobe should score 0")
	}

	// tee: 35 over 110 wears; skirt: 95 over 5 wears
	if report.BestValue == nil || report.BestValue.ItemID != "6" || report.BestValue.CostPerWear != 0.32 {
		t.Errorf("unexpected best value %+v", report.BestValue)
	}
	if report.WorstValue == nil || report.WorstValue.ItemID != "4" || report.WorstValue.CostPerWear != 19 {
		t.Errorf("unexpected worst value %+v", report.WorstValue)
	}
	if empty := BuildImpactReport(nil, 0); empty.BestValue != nil || empty.WorstValue != nil {
		t.Error("empty wardrobe has no best or worst item")
	}
}
