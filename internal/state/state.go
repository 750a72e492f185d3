// Package state holds a session's view-state and the pure update function over it.
package state

import (
	"github.com/Corphon/VogueVault/internal/catalog"
	"github.com/Corphon/VogueVault/internal/models"
	"github.com/Corphon/VogueVault/internal/utils"
)

// State is the serializable view-state of one session.
type State struct {
	View       models.View           `json:"view"`
	Wardrobe   []models.WardrobeItem `json:"wardrobe"`
	Outfit     []models.WardrobeItem `json:"outfit"`
	MoneySaved float64               `json:"moneySaved"`
}

// Initial returns the state of a fresh session.
func Initial() State {
	return State{
		View:       models.ViewDashboard,
		Wardrobe:   catalog.SeedWardrobe(),
		Outfit:     []models.WardrobeItem{},
		MoneySaved: catalog.InitialMoneySaved(),
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Wardrobe = cloneItems(s.Wardrobe)
	c.Outfit = cloneItems(s.Outfit)
	return c
}

// FindItem looks an item up in the wardrobe by id.
func (s State) FindItem(id string) (models.WardrobeItem, bool) {
	for _, it := range s.Wardrobe {
		if it.ID == id {
			return it, true
		}
	}
	return models.WardrobeItem{}, false
}

// InOutfit reports whether id is staged.
func (s State) InOutfit(id string) bool {
	return indexOf(s.Outfit, id) >= 0
}

func cloneItems(items []models.WardrobeItem) []models.WardrobeItem {
	out := make([]models.WardrobeItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func indexOf(items []models.WardrobeItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Action is a closed set of state transitions. Only types in this package implement it.
type Action interface {
	actionName() string
}

// Navigate switches the active screen.
type Navigate struct{ View models.View }

// AddItem prepends an item to the wardrobe.
type AddItem struct{ Item models.WardrobeItem }

// UpdateItem replaces the wardrobe item with the same id.
type UpdateItem struct{ Item models.WardrobeItem }

// ToggleOutfit stages the item if absent, unstages it if present.
type ToggleOutfit struct{ Item models.WardrobeItem }

// StageForOutfit stages the item if absent and opens the orchestrator.
type StageForOutfit struct{ Item models.WardrobeItem }

// DiscardPurchase credits a skipped purchase to the savings counter.
type DiscardPurchase struct{ Amount float64 }

// ClearOutfit empties the staged outfit.
type ClearOutfit struct{}

func (Navigate) actionName() string        { return "navigate" }
func (AddItem) actionName() string         { return "add_item" }
func (UpdateItem) actionName() string      { return "update_item" }
func (ToggleOutfit) actionName() string    { return "toggle_outfit" }
func (StageForOutfit) actionName() string  { return "stage_for_outfit" }
func (DiscardPurchase) actionName() string { return "discard_purchase" }
func (ClearOutfit) actionName() string     { return "clear_outfit" }

// ActionName is used for logging and metrics.
func ActionName(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionName()
}

// Reduce returns the state that results from applying a to s. s is not modified.
func Reduce(s State, a Action) State {
	next := s.Clone()

	switch act := a.(type) {
	case Navigate:
		if !act.View.Valid() {
			utils.GetLogger().Warn("ignoring navigation to unknown view", utils.Fields{"view": act.View})
			return next
		}
		next.View = act.View

	case AddItem:
		next.Wardrobe = append([]models.WardrobeItem{act.Item.Clone()}, next.Wardrobe...)

	case UpdateItem:
		if i := indexOf(next.Wardrobe, act.Item.ID); i >= 0 {
			next.Wardrobe[i] = act.Item.Clone()
		}

	case ToggleOutfit:
		if i := indexOf(next.Outfit, act.Item.ID); i >= 0 {
			next.Outfit = append(next.Outfit[:i], next.Outfit[i+1:]...)
		} else {
			next.Outfit = append(next.Outfit, act.Item.Clone())
		}

	case StageForOutfit:
		if indexOf(next.Outfit, act.Item.ID) < 0 {
			next.Outfit = append(next.Outfit, act.Item.Clone())
		}
		next.View = models.ViewOrchestrator

	case DiscardPurchase:
		if act.Amount > 0 {
			next.MoneySaved += act.Amount
		}

	case ClearOutfit:
		next.Outfit = []models.WardrobeItem{}

	default:
		utils.GetLogger().Warn("unhandled action", utils.Fields{"action": ActionName(a)})
	}

	return next
}
