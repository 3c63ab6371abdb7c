package features

import (
	"context"
	"strings"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/pkg/types"
)

// TranslateRequest is the payload of translateMessage.
type TranslateRequest struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
	TargetLanguage string `json:"targetLanguage" validate:"required,langcode"`
}

// TranslateMessage translates a stored message into req.TargetLanguage. The
// caller must participate in the message's conversation. Translations are
// cached per (message, target language).
func (s *Service) TranslateMessage(ctx context.Context, req TranslateRequest) (*types.Translation, error) {
	const op = "features.TranslateMessage"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return nil, err
	}
	req.MessageID = strings.TrimSpace(req.MessageID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.TargetLanguage = normalizeLang(req.TargetLanguage)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}

	msg, err := s.loadMessage(ctx, op, userID, req.ConversationID, req.MessageID)
	if err != nil {
		return nil, err
	}
	text, err := s.checkText(op, "message text", msg.Text, config.FeatureTranslate)
	if err != nil {
		return nil, err
	}

	res, hit, err := run(ctx, s, pipeline[types.Translation]{
		op:      op,
		feature: config.FeatureTranslate,
		key:     []string{msg.ID, req.TargetLanguage},
		compute: func(ctx context.Context) (types.Translation, error) {
			var raw struct {
				TranslatedText   string `json:"translatedText"`
				OriginalLanguage string `json:"originalLanguage"`
			}
			if err := s.invoke(ctx, config.FeatureTranslate, translateSystem,
				translatePrompt(text, msg.Language, req.TargetLanguage), 0.3, 2000, &raw); err != nil {
				return types.Translation{}, err
			}
			translated := strings.TrimSpace(raw.TranslatedText)
			if translated == "" {
				return types.Translation{}, apperr.Internal(op, "model returned an empty translation", nil)
			}
			orig := coerceLang(raw.OriginalLanguage)
			if orig == "und" && msg.Language != "" {
				orig = coerceLang(msg.Language)
			}
			return types.Translation{
				MessageID:        msg.ID,
				OriginalText:     msg.Text,
				TranslatedText:   translated,
				OriginalLanguage: orig,
				TargetLanguage:   req.TargetLanguage,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Cached = hit
	return &res, nil
}
