package features

import (
	"context"

	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// DetectLanguageRequest is the payload of detectLanguage.
type DetectLanguageRequest struct {
	Text string `json:"text"`
}

// DetectLanguage identifies the language of req.Text. Results are cached per
// text content; an unrecognizable code from the model becomes "und".
func (s *Service) DetectLanguage(ctx context.Context, req DetectLanguageRequest) (*types.LanguageDetection, error) {
	const op = "features.DetectLanguage"
	if _, err := auth.Require(ctx, op); err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureDetectLanguage)
	if err != nil {
		return nil, err
	}

	res, hit, err := run(ctx, s, pipeline[types.LanguageDetection]{
		op:      op,
		feature: config.FeatureDetectLanguage,
		key:     []string{cache.HashText(text)},
		compute: func(ctx context.Context) (types.LanguageDetection, error) {
			var raw struct {
				Language   string  `json:"language"`
				Confidence float64 `json:"confidence"`
			}
			if err := s.invoke(ctx, config.FeatureDetectLanguage, detectLanguageSystem,
				detectLanguagePrompt(text), 0.1, 100, &raw); err != nil {
				return types.LanguageDetection{}, err
			}
			return types.LanguageDetection{
				Language:   coerceLang(raw.Language),
				Confidence: clamp01(raw.Confidence),
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}
