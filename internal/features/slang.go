package features

import (
	"context"
	"slices"
	"strings"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// PhraseTypes are the kinds of expression slang detection reports.
var PhraseTypes = []string{"slang", "idiom", "colloquialism", "abbreviation"}

// SlangRequest is the payload of detectSlangIdioms.
type SlangRequest struct {
	Text     string `json:"text"`
	Language string `json:"language" validate:"required,langcode"`
}

// ExplainPhraseRequest is the payload of explainPhrase. Context is the
// optional sentence the phrase was used in.
type ExplainPhraseRequest struct {
	Phrase   string `json:"phrase"`
	Language string `json:"language" validate:"required,langcode"`
	Context  string `json:"context,omitempty" validate:"max=1000"`
}

// DetectSlangIdioms lists the slang, idioms, colloquialisms and
// abbreviations found in req.Text.
func (s *Service) DetectSlangIdioms(ctx context.Context, req SlangRequest) (*types.SlangDetection, error) {
	const op = "features.DetectSlangIdioms"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	req.Language = normalizeLang(req.Language)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureSlangDetect)
	if err != nil {
		return nil, err
	}

	res, hit, err := run(ctx, s, pipeline[types.SlangDetection]{
		op:      op,
		feature: config.FeatureSlangDetect,
		key:     []string{req.Language, cache.HashText(text)},
		compute: func(ctx context.Context) (types.SlangDetection, error) {
			var raw struct {
				Phrases []types.DetectedPhrase `json:"phrases"`
			}
			if err := s.invoke(ctx, config.FeatureSlangDetect, slangSystem,
				slangPrompt(text, req.Language), 0.3, 1500, &raw); err != nil {
				return types.SlangDetection{}, err
			}
			out := types.SlangDetection{Phrases: make([]types.DetectedPhrase, 0, len(raw.Phrases))}
			for _, p := range raw.Phrases {
				p.Phrase = strings.TrimSpace(p.Phrase)
				if p.Phrase == "" {
					continue
				}
				p.Type = coercePhraseType(p.Type)
				p.Meaning = strings.TrimSpace(p.Meaning)
				p.Origin = strings.TrimSpace(p.Origin)
				p.Similar = nonNil(p.Similar)
				p.Examples = nonNil(p.Examples)
				out.Phrases = append(out.Phrases, p)
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

// ExplainPhrase explains a single phrase, optionally as used in req.Context.
func (s *Service) ExplainPhrase(ctx context.Context, req ExplainPhraseRequest) (*types.PhraseExplanation, error) {
	const op = "features.ExplainPhrase"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	req.Language = normalizeLang(req.Language)
	req.Context = strings.TrimSpace(req.Context)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	phrase, err := s.checkText(op, "phrase", req.Phrase, config.FeatureExplainPhrase)
	if err != nil {
		return nil, err
	}

	res, hit, err := run(ctx, s, pipeline[types.PhraseExplanation]{
		op:      op,
		feature: config.FeatureExplainPhrase,
		key:     []string{req.Language, cache.HashText(phrase), cache.HashText(req.Context)},
		compute: func(ctx context.Context) (types.PhraseExplanation, error) {
			var raw types.PhraseExplanation
			if err := s.invoke(ctx, config.FeatureExplainPhrase, explainPhraseSystem,
				explainPhrasePrompt(phrase, req.Language, req.Context), 0.3, 800, &raw); err != nil {
				return types.PhraseExplanation{}, err
			}
			raw.Meaning = strings.TrimSpace(raw.Meaning)
			if raw.Meaning == "" {
				return types.PhraseExplanation{}, apperr.Internal(op, "model returned no meaning", nil)
			}
			raw.Origin = strings.TrimSpace(raw.Origin)
			raw.CulturalNotes = strings.TrimSpace(raw.CulturalNotes)
			raw.Examples = nonNil(raw.Examples)
			raw.Cached = false
			return raw, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}

func coercePhraseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if slices.Contains(PhraseTypes, t) {
		return t
	}
	return "slang"
}
