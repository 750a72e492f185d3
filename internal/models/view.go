// internal/models/view.go
package models

import "fmt"

// View 当前屏幕选择器（封闭集合）
type View string

const (
	ViewDashboard    View = "dashboard"
	ViewVault        View = "vault"
	ViewOrchestrator View = "orchestrator"
	ViewGatekeeper   View = "gatekeeper"
	ViewMixer        View = "mixer"
	ViewDesignStudio View = "design_studio"
	ViewImpact       View = "impact"
	ViewSettings     View = "settings"
)

// Views 返回全部屏幕
func Views() []View {
	return []View{
		ViewDashboard, ViewVault, ViewOrchestrator, ViewGatekeeper,
		ViewMixer, ViewDesignStudio, ViewImpact, ViewSettings,
	}
}

// ParseView 解析屏幕名称，未知名称返回错误
func ParseView(s string) (View, error) {
	v := View(s)
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Valid 是否为已知屏幕
func (v View) Valid() bool {
	switch v {
	case ViewDashboard, ViewVault, ViewOrchestrator, ViewGatekeeper,
		ViewMixer, ViewDesignStudio, ViewImpact, ViewSettings:
		return true
	default:
		return false
	}
}

// Title 屏幕标题
func (v View) Title() string {
	switch v {
	case ViewDashboard:
		return "Dashboard"
	case ViewVault:
		return "Digital Vault"
	case ViewOrchestrator:
		return "Outfit Orchestrator"
	case ViewGatekeeper:
		return "Purchase Gatekeeper"
	case ViewMixer:
		return "Style Mixer"
	case ViewDesignStudio:
		return "Design Studio"
	case ViewImpact:
		return "Impact Report"
	case ViewSettings:
		return "Settings locked."
	default:
		return "Unknown"
	}
}
