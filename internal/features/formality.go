package features

import (
	"context"
	"strings"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// FormalityRequest is the payload of analyzeFormality. MessageID is
// informational and does not affect the result or its cache key.
type FormalityRequest struct {
	MessageID string `json:"messageId,omitempty"`
	Text      string `json:"text"`
	Language  string `json:"language" validate:"required,langcode"`
}

// AdjustFormalityRequest is the payload of adjustFormality. An empty
// CurrentLevel triggers an implicit formality analysis first.
type AdjustFormalityRequest struct {
	Text         string `json:"text"`
	CurrentLevel string `json:"currentLevel,omitempty"`
	TargetLevel  string `json:"targetLevel" validate:"required"`
	Language     string `json:"language" validate:"required,langcode"`
}

// AnalyzeFormality rates req.Text on the five-level formality scale.
func (s *Service) AnalyzeFormality(ctx context.Context, req FormalityRequest) (*types.FormalityAnalysis, error) {
	const op = "features.AnalyzeFormality"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	req.Language = normalizeLang(req.Language)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureFormalityAnalysis)
	if err != nil {
		return nil, err
	}
	if req.MessageID != "" {
		s.logger.Debug("features: formality analysis", "message_id", req.MessageID)
	}
	return s.analyzeFormality(ctx, op, text, req.Language)
}

func (s *Service) analyzeFormality(ctx context.Context, op, text, lang string) (*types.FormalityAnalysis, error) {
	res, hit, err := run(ctx, s, pipeline[types.FormalityAnalysis]{
		op:      op,
		feature: config.FeatureFormalityAnalysis,
		key:     []string{lang, cache.HashText(text)},
		compute: func(ctx context.Context) (types.FormalityAnalysis, error) {
			var raw struct {
				Level          string   `json:"level"`
				Confidence     float64  `json:"confidence"`
				Markers        []string `json:"markers"`
				Explanation    string   `json:"explanation"`
				SuggestedLevel string   `json:"suggestedLevel"`
			}
			if err := s.invoke(ctx, config.FeatureFormalityAnalysis, formalityAnalysisSystem,
				formalityAnalysisPrompt(text, lang), 0.2, 500, &raw); err != nil {
				return types.FormalityAnalysis{}, err
			}
			level, ok := types.ParseFormalityLevel(raw.Level)
			if !ok {
				level = types.FormalityNeutral
			}
			suggested, ok := types.ParseFormalityLevel(raw.SuggestedLevel)
			if !ok {
				suggested = ""
			}
			return types.FormalityAnalysis{
				Level:          level,
				Confidence:     clamp01(raw.Confidence),
				Markers:        nonNil(raw.Markers),
				Explanation:    strings.TrimSpace(raw.Explanation),
				SuggestedLevel: suggested,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}

// AdjustFormality rewrites req.Text at req.TargetLevel. The target level is
// checked against the closed scale before any model call. When the current
// level already equals the target the text is returned unchanged.
func (s *Service) AdjustFormality(ctx context.Context, req AdjustFormalityRequest) (*types.FormalityAdjustment, error) {
	const op = "features.AdjustFormality"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	req.Language = normalizeLang(req.Language)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	target, ok := types.ParseFormalityLevel(req.TargetLevel)
	if !ok {
		return nil, apperr.Invalid(op, "targetLevel %q is not a formality level", req.TargetLevel)
	}
	var current types.FormalityLevel
	if strings.TrimSpace(req.CurrentLevel) != "" {
		if current, ok = types.ParseFormalityLevel(req.CurrentLevel); !ok {
			return nil, apperr.Invalid(op, "currentLevel %q is not a formality level", req.CurrentLevel)
		}
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureFormalityAdjust)
	if err != nil {
		return nil, err
	}

	if current == "" {
		analysis, err := s.analyzeFormality(ctx, op, text, req.Language)
		if err != nil {
			return nil, err
		}
		current = analysis.Level
	}

	if current == target {
		return &types.FormalityAdjustment{
			AdjustedText:       text,
			OriginalLevel:      current,
			TargetLevel:        target,
			ChangesExplanation: "The text already matches the target formality level.",
		}, nil
	}

	res, hit, err := run(ctx, s, pipeline[types.FormalityAdjustment]{
		op:      op,
		feature: config.FeatureFormalityAdjust,
		key:     []string{req.Language, string(current), string(target), cache.HashText(text)},
		compute: func(ctx context.Context) (types.FormalityAdjustment, error) {
			var raw struct {
				AdjustedText       string `json:"adjustedText"`
				ChangesExplanation string `json:"changesExplanation"`
			}
			if err := s.invoke(ctx, config.FeatureFormalityAdjust, formalityAdjustSystem,
				formalityAdjustPrompt(text, req.Language, current, target), 0.4, 1000, &raw); err != nil {
				return types.FormalityAdjustment{}, err
			}
			adjusted := strings.TrimSpace(raw.AdjustedText)
			if adjusted == "" {
				return types.FormalityAdjustment{}, apperr.Internal(op, "model returned empty adjusted text", nil)
			}
			return types.FormalityAdjustment{
				AdjustedText:       adjusted,
				OriginalLevel:      current,
				TargetLevel:        target,
				ChangesExplanation: strings.TrimSpace(raw.ChangesExplanation),
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}
