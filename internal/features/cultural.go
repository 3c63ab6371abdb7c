package features

import (
	"context"
	"slices"
	"strings"

	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// CulturalCategories are the categories a cultural-context hint may carry.
var CulturalCategories = []string{"idiom", "humor", "etiquette", "reference", "slang", "holiday", "other"}

// CulturalContextRequest is the payload of analyzeCulturalContext.
type CulturalContextRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage" validate:"required,langcode"`
	TargetLanguage string `json:"targetLanguage" validate:"required,langcode"`
}

// AnalyzeCulturalContext reports whether req.Text carries cultural references
// a reader of req.TargetLanguage may miss.
func (s *Service) AnalyzeCulturalContext(ctx context.Context, req CulturalContextRequest) (*types.CulturalContext, error) {
	const op = "features.AnalyzeCulturalContext"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	req.SourceLanguage = normalizeLang(req.SourceLanguage)
	req.TargetLanguage = normalizeLang(req.TargetLanguage)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureCulturalContext)
	if err != nil {
		return nil, err
	}

	res, hit, err := run(ctx, s, pipeline[types.CulturalContext]{
		op:      op,
		feature: config.FeatureCulturalContext,
		key:     []string{req.SourceLanguage, req.TargetLanguage, cache.HashText(text)},
		compute: func(ctx context.Context) (types.CulturalContext, error) {
			var raw struct {
				HasContext  bool    `json:"hasContext"`
				Explanation string  `json:"explanation"`
				Category    string  `json:"category"`
				Confidence  float64 `json:"confidence"`
			}
			if err := s.invoke(ctx, config.FeatureCulturalContext, culturalContextSystem,
				culturalContextPrompt(text, req.SourceLanguage, req.TargetLanguage), 0.3, 500, &raw); err != nil {
				return types.CulturalContext{}, err
			}
			out := types.CulturalContext{
				HasContext: raw.HasContext,
				Confidence: clamp01(raw.Confidence),
			}
			if raw.HasContext {
				out.Explanation = strings.TrimSpace(raw.Explanation)
				out.Category = coerceCategory(raw.Category)
			}
			return out, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}

func coerceCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if slices.Contains(CulturalCategories, c) {
		return c
	}
	return "other"
}
