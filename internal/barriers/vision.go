package barriers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camprush/camprush/internal/browser"
	"github.com/camprush/camprush/internal/clients/openai"
)

type Screenshotter interface {
	Screenshot(ctx context.Context, rawURL string) ([]byte, error)
}

// VisionAnalyzer screenshots the provider page and asks a vision model which
// barriers it shows.
type VisionAnalyzer struct {
	shots Screenshotter
	llm   openai.Client
}

func NewVisionAnalyzer(shots Screenshotter, llm openai.Client) *VisionAnalyzer {
	return &VisionAnalyzer{shots: shots, llm: llm}
}

const visionSystemPrompt = `You review screenshots of children's camp and activity registration websites.
List every obstacle a parent would meet while signing up: account creation, login, CAPTCHA,
document upload, payment, or verification. Use only the allowed enum values. Give each barrier
a confidence between 0 and 1.`

var visionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"barriers"},
	"properties": map[string]any{
		"barriers": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"type", "stage", "captcha_likelihood", "required_fields", "estimated_minutes", "complexity", "description", "confidence"},
				"properties": map[string]any{
					"type":               map[string]any{"type": "string", "enum": []string{"account_creation", "login", "captcha", "document_upload", "payment", "verification"}},
					"stage":              map[string]any{"type": "string", "enum": []string{"initial", "account_setup", "registration", "payment", "confirmation"}},
					"captcha_likelihood": map[string]any{"type": "number"},
					"required_fields":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"estimated_minutes":  map[string]any{"type": "integer"},
					"complexity":         map[string]any{"type": "string", "enum": []string{"low", "medium", "high", "expert"}},
					"description":        map[string]any{"type": "string"},
					"confidence":         map[string]any{"type": "number"},
				},
			},
		},
	},
}

type visionBarrier struct {
	Type              Type       `json:"type"`
	Stage             Stage      `json:"stage"`
	CaptchaLikelihood float64    `json:"captcha_likelihood"`
	RequiredFields    []string   `json:"required_fields"`
	EstimatedMinutes  int        `json:"estimated_minutes"`
	Complexity        Complexity `json:"complexity"`
	Description       string     `json:"description"`
	Confidence        float64    `json:"confidence"`
}

func (a *VisionAnalyzer) Analyze(ctx context.Context, providerURL string) ([]Barrier, error) {
	shot, err := a.shots.Screenshot(ctx, providerURL)
	if err != nil {
		return nil, err
	}

	obj, err := a.llm.GenerateJSONWithImages(ctx, visionSystemPrompt,
		"Registration page: "+providerURL,
		[]openai.ImageInput{{ImageURL: browser.DataURL(shot), Detail: "high"}},
		"registration_barriers", visionSchema)
	if err != nil {
		return nil, err
	}
	return decodeVision(obj)
}

func decodeVision(obj map[string]any) ([]Barrier, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Barriers []visionBarrier `json:"barriers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode vision barriers: %w", err)
	}

	out := make([]Barrier, 0, len(resp.Barriers))
	for _, vb := range resp.Barriers {
		if !vb.Type.Valid() || !vb.Stage.Valid() {
			continue
		}
		conf := vb.Confidence
		out = append(out, Normalize(Barrier{
			Type:              vb.Type,
			Stage:             vb.Stage,
			CaptchaLikelihood: vb.CaptchaLikelihood,
			RequiredFields:    vb.RequiredFields,
			EstimatedMinutes:  vb.EstimatedMinutes,
			Complexity:        vb.Complexity,
			Description:       vb.Description,
			AIConfidence:      &conf,
		}))
	}
	return out, nil
}
