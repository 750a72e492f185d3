// internal/services/prompts.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Corphon/VogueVault/internal/models"
)

const classifyPrompt = `Analyze this clothing item for a wardrobe app.
Return JSON with: title, category (Tops, Bottoms, Shoes, Accessories, Outerwear), color, fabric, tags (array of strings), and sustainability metrics (rating A-F, carbonFootprint, waterUsage, materialAnalysis).`

const gatekeeperPromptTemplate = `Act as "The Gatekeeper", a strict sustainable fashion AI.

Task: Analyze this image of a POTENTIAL NEW PURCHASE and compare it against the user's CURRENT WARDROBE.

CURRENT WARDROBE JSON:
%s

Rules:
1. If the user already owns something very similar (same color, category, and vibe), REJECT it. Sustainability is about reducing consumption.
2. If it is unique and fills a gap, APPROVE it.

Output JSON format:
{
  "decision": "APPROVED" | "REJECTED",
  "reason": "Short punchy explanation.",
  "similarItemId": "ID of the most similar item if REJECTED, else null",
  "carbonImpact": "Low" | "Medium" | "High",
  "potentialOutfits": Number (estimated new combos)
}`

const stylistPromptTemplate = `You are VogueVault, a conscious stylist.
INVENTORY: %s
CONTEXT: %s

1. Generate a photorealistic image of the outfit.
2. Provide text advice:
*Vogue's Verdict:* [Summary]
**The Look:** [Name]
**Why it works:** [Theory]
`

const blendPrompt = `You are the VogueVault Fashion Mixer, a sustainable couture designer.
Study the %d reference garments attached. Fuse their silhouettes, palettes and textures into ONE new hybrid garment.

1. Generate a photorealistic studio image of the hybrid garment on a clean background.
2. Provide designer commentary:
**Name:** [Hybrid name]
**DNA:** [Which traits came from which reference]
**Sustainability note:** [How it could be produced responsibly]
`

const prototypePromptTemplate = "High fashion sustainable prototype: %s, photorealistic, studio lighting, clean background"

const proDesignPromptTemplate = `Design a high-fashion, sustainable garment for the VogueVault Design Lab.
BRIEF: %s
Render a single photorealistic editorial image, then describe the design in two or three sentences covering materials and construction.`

var classifySchema = map[string]interface{}{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"title":    map[string]interface{}{"type": "STRING"},
		"category": map[string]interface{}{"type": "STRING", "enum": []string{"Tops", "Bottoms", "Shoes", "Accessories", "Outerwear"}},
		"color":    map[string]interface{}{"type": "STRING"},
		"fabric":   map[string]interface{}{"type": "STRING"},
		"tags":     map[string]interface{}{"type": "ARRAY", "items": map[string]interface{}{"type": "STRING"}},
		"sustainability": map[string]interface{}{
			"type": "OBJECT",
			"properties": map[string]interface{}{
				"rating":           map[string]interface{}{"type": "STRING"},
				"carbonFootprint":  map[string]interface{}{"type": "STRING"},
				"waterUsage":       map[string]interface{}{"type": "STRING"},
				"materialAnalysis": map[string]interface{}{"type": "STRING"},
			},
		},
	},
}

var gatekeeperSchema = map[string]interface{}{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"decision":         map[string]interface{}{"type": "STRING", "enum": []string{"APPROVED", "REJECTED"}},
		"reason":           map[string]interface{}{"type": "STRING"},
		"similarItemId":    map[string]interface{}{"type": "STRING"},
		"carbonImpact":     map[string]interface{}{"type": "STRING", "enum": []string{"Low", "Medium", "High"}},
		"potentialOutfits": map[string]interface{}{"type": "INTEGER"},
	},
}

type wardrobeDigest struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Color    string          `json:"color"`
	Category models.Category `json:"category"`
	Tags     []string        `json:"tags"`
}

func gatekeeperPrompt(wardrobe []models.WardrobeItem) string {
	digest := make([]wardrobeDigest, len(wardrobe))
	for i, it := range wardrobe {
		digest[i] = wardrobeDigest{ID: it.ID, Title: it.Title, Color: it.Color, Category: it.Category, Tags: it.Tags}
	}
	data, _ := json.Marshal(digest)
	return fmt.Sprintf(gatekeeperPromptTemplate, data)
}

func stylistPrompt(wardrobe []models.WardrobeItem, context string) string {
	lines := make([]string, len(wardrobe))
	for i, it := range wardrobe {
		lines[i] = fmt.Sprintf("- %s (%s %s)", it.Title, it.Color, it.Category)
	}
	return fmt.Sprintf(stylistPromptTemplate, strings.Join(lines, "\n"), context)
}
