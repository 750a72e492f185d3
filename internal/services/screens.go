// internal/services/screens.go
package services

import (
	"sync"

	"github.com/Corphon/VogueVault/internal/models"
)

// ScreenStatus 屏幕局部的工作状态
type ScreenStatus string

const (
	StatusIdle    ScreenStatus = "idle"
	StatusWorking ScreenStatus = "working"
	StatusDone    ScreenStatus = "done"
)

// 各屏幕的请求代次键
const (
	ScreenVault        = "vault"
	ScreenOrchestrator = "orchestrator"
	ScreenGatekeeper   = "gatekeeper"
	ScreenMixer        = "mixer"
	ScreenDesignStudio = "design_studio"
	ScreenEcoLab       = "eco_lab"
)

// ResettableScreens 可以被用户重置的屏幕
var ResettableScreens = []string{
	ScreenVault, ScreenOrchestrator, ScreenGatekeeper, ScreenMixer, ScreenDesignStudio, ScreenEcoLab,
}

// VaultScreen 上传识别的局部状态
type VaultScreen struct {
	Status    ScreenStatus         `json:"status"`
	Preview   string               `json:"preview,omitempty"`
	LastAdded *models.WardrobeItem `json:"last_added,omitempty"`
	Source    Source               `json:"source,omitempty"`
}

// GatekeeperScreen 购买守门人的局部状态
type GatekeeperScreen struct {
	Status    ScreenStatus              `json:"status"`
	Preview   string                    `json:"preview,omitempty"`
	Verdict   *models.GatekeeperVerdict `json:"verdict,omitempty"`
	Source    Source                    `json:"source,omitempty"`
	LastSaved float64                   `json:"last_saved,omitempty"`
}

// OrchestratorScreen 搭配器的局部状态
type OrchestratorScreen struct {
	Status     ScreenStatus   `json:"status"`
	Context    string         `json:"context,omitempty"`
	Suggestion *models.Design `json:"suggestion,omitempty"`
	Source     Source         `json:"source,omitempty"`
}

// MixerImage 混搭器中的一张参考图
type MixerImage struct {
	ID      string `json:"id"`
	DataURL string `json:"data_url"`
}

// MixerScreen 风格混搭器的局部状态
type MixerScreen struct {
	Status ScreenStatus   `json:"status"`
	Images []MixerImage   `json:"images"`
	Result *models.Design `json:"result,omitempty"`
	Source Source         `json:"source,omitempty"`
	Saved  bool           `json:"saved"`
}

// DesignStudioScreen 设计工作室的局部状态
type DesignStudioScreen struct {
	Status      ScreenStatus   `json:"status"`
	Prompt      string         `json:"prompt,omitempty"`
	AspectRatio string         `json:"aspect_ratio"`
	Reference   string         `json:"reference,omitempty"`
	Result      *models.Design `json:"result,omitempty"`
	Source      Source         `json:"source,omitempty"`
	Saved       bool           `json:"saved"`
	NeedsKey    bool           `json:"needs_key"`
}

// EcoLabScreen 可持续原型生成的局部状态
type EcoLabScreen struct {
	Status  ScreenStatus `json:"status"`
	Concept string       `json:"concept,omitempty"`
	Image   string       `json:"image,omitempty"`
	Source  Source       `json:"source,omitempty"`
}

// Screens 一个会话内全部屏幕的局部状态；与共享视图状态分开保存
type Screens struct {
	mu sync.Mutex

	Vault        VaultScreen        `json:"vault"`
	Gatekeeper   GatekeeperScreen   `json:"gatekeeper"`
	Orchestrator OrchestratorScreen `json:"orchestrator"`
	Mixer        MixerScreen        `json:"mixer"`
	DesignStudio DesignStudioScreen `json:"design_studio"`
	EcoLab       EcoLabScreen       `json:"eco_lab"`
}

// NewScreens 所有屏幕处于空闲状态
func NewScreens() *Screens {
	s := &Screens{}
	for _, name := range ResettableScreens {
		s.resetLocked(name)
	}
	return s
}

// ScreensView 屏幕状态的只读副本
type ScreensView struct {
	Vault        VaultScreen        `json:"vault"`
	Gatekeeper   GatekeeperScreen   `json:"gatekeeper"`
	Orchestrator OrchestratorScreen `json:"orchestrator"`
	Mixer        MixerScreen        `json:"mixer"`
	DesignStudio DesignStudioScreen `json:"design_studio"`
	EcoLab       EcoLabScreen       `json:"eco_lab"`
}

// View 返回副本
func (s *Screens) View() ScreensView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Screens) viewLocked() ScreensView {
	v := ScreensView{
		Vault:        s.Vault,
		Gatekeeper:   s.Gatekeeper,
		Orchestrator: s.Orchestrator,
		Mixer:        s.Mixer,
		DesignStudio: s.DesignStudio,
		EcoLab:       s.EcoLab,
	}
	v.Mixer.Images = append([]MixerImage{}, s.Mixer.Images...)
	return v
}

// resetLocked 恢复屏幕初始状态，调用方持有锁
func (s *Screens) resetLocked(screen string) bool {
	switch screen {
	case ScreenVault:
		s.Vault = VaultScreen{Status: StatusIdle}
	case ScreenGatekeeper:
		s.Gatekeeper = GatekeeperScreen{Status: StatusIdle}
	case ScreenOrchestrator:
		s.Orchestrator = OrchestratorScreen{Status: StatusIdle}
	case ScreenMixer:
		s.Mixer = MixerScreen{Status: StatusIdle, Images: []MixerImage{}}
	case ScreenDesignStudio:
		s.DesignStudio = DesignStudioScreen{Status: StatusIdle, AspectRatio: "1:1"}
	case ScreenEcoLab:
		s.EcoLab = EcoLabScreen{Status: StatusIdle}
	default:
		return false
	}
	return true
}
