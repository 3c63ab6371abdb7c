package features

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/cache"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// StructuredTypes are the kinds of actionable data extraction recognizes.
var StructuredTypes = []string{"event", "reminder", "task", "location", "contact"}

// StructuredDataRequest is the payload of extractStructuredData.
type StructuredDataRequest struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
	Text           string `json:"text"`
	Language       string `json:"language" validate:"required,langcode"`
}

// schedulingCue matches text that plausibly mentions a time, date, place or
// commitment. Messages without a cue are not sent to the model by
// AutoExtract.
var schedulingCue = regexp.MustCompile(`(?i)(\d|\b(today|tonight|tomorrow|yesterday|noon|midnight|morning|afternoon|evening|weekend|week|month|monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december|meet|meeting|call|dinner|lunch|breakfast|party|appointment|deadline|remind|reminder|due|address|street|avenue|phone|email|hoy|mañana|manana|demain|morgen|heute)\b)`)

// ExtractStructuredData extracts an event, reminder, task, location or
// contact from a message the caller can read. Results are cached per
// message, language and text.
func (s *Service) ExtractStructuredData(ctx context.Context, req StructuredDataRequest) (*types.StructuredData, error) {
	const op = "features.ExtractStructuredData"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return nil, err
	}
	req.MessageID = strings.TrimSpace(req.MessageID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Language = normalizeLang(req.Language)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "text", req.Text, config.FeatureStructuredData)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadMessage(ctx, op, userID, req.ConversationID, req.MessageID); err != nil {
		return nil, err
	}
	return s.extractStructured(ctx, op, req.MessageID, text, req.Language)
}

// AutoExtract runs structured-data extraction for a newly created message on
// behalf of the background trigger. It skips caller authorization and
// returns (nil, nil) for messages with no text, text over the length limit,
// or no scheduling cue. Results share the cache of ExtractStructuredData.
func (s *Service) AutoExtract(ctx context.Context, msg types.Message) (*types.StructuredData, error) {
	const op = "features.AutoExtract"
	text := strings.TrimSpace(msg.Text)
	if text == "" || !schedulingCue.MatchString(text) {
		return nil, nil
	}
	if len([]rune(text)) > s.rule(config.FeatureStructuredData).MaxLength {
		return nil, nil
	}
	lang := coerceLang(msg.Language)
	return s.extractStructured(ctx, op, msg.ID, text, lang)
}

func (s *Service) extractStructured(ctx context.Context, op, messageID, text, lang string) (*types.StructuredData, error) {
	res, hit, err := run(ctx, s, pipeline[types.StructuredData]{
		op:      op,
		feature: config.FeatureStructuredData,
		key:     []string{messageID, lang, cache.HashText(text)},
		compute: func(ctx context.Context) (types.StructuredData, error) {
			var raw struct {
				Type        string  `json:"type"`
				DateTime    string  `json:"datetime"`
				Location    string  `json:"location"`
				Description string  `json:"description"`
				Confidence  float64 `json:"confidence"`
			}
			if err := s.invoke(ctx, config.FeatureStructuredData, structuredDataSystem,
				structuredDataPrompt(text, lang), 0.1, 400, &raw); err != nil {
				return types.StructuredData{}, err
			}
			return types.StructuredData{
				MessageID:   messageID,
				Type:        coerceStructuredType(raw.Type),
				DateTime:    strings.TrimSpace(raw.DateTime),
				Location:    strings.TrimSpace(raw.Location),
				Description: strings.TrimSpace(raw.Description),
				Confidence:  clamp01(raw.Confidence),
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}

// coerceStructuredType returns "" (omitted) for unknown types.
func coerceStructuredType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if slices.Contains(StructuredTypes, t) {
		return t
	}
	return ""
}
