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

// ReplyTones are the tones a smart reply may carry.
var ReplyTones = []string{"casual", "formal", "friendly", "neutral", "enthusiastic"}

const (
	maxSmartReplies = 3
	replyHistory    = 10
)

// SmartRepliesRequest is the payload of generateSmartReplies. An empty
// Language replies in the language of the conversation.
type SmartRepliesRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Language       string `json:"language,omitempty" validate:"omitempty,langcode"`
}

// GenerateSmartReplies suggests up to three replies to the latest message of
// a conversation. Suggestions are cached per (conversation, latest message,
// language), so a new message produces fresh suggestions.
func (s *Service) GenerateSmartReplies(ctx context.Context, req SmartRepliesRequest) (*types.SmartReplies, error) {
	const op = "features.GenerateSmartReplies"
	userID, err := auth.Require(ctx, op)
	if err != nil {
		return nil, err
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.Language = normalizeLang(req.Language)
	if err := validateRequest(op, req); err != nil {
		return nil, err
	}
	if err := s.authorizeConversation(ctx, op, userID, req.ConversationID); err != nil {
		return nil, err
	}

	history, err := s.messages.RecentMessages(ctx, req.ConversationID, replyHistory)
	if err != nil {
		return nil, apperr.Internal(op, "failed to load conversation history", err)
	}
	history = slices.DeleteFunc(history, func(m types.Message) bool { return strings.TrimSpace(m.Text) == "" })
	if len(history) == 0 {
		return &types.SmartReplies{Replies: []types.SmartReply{}}, nil
	}
	last := history[len(history)-1]

	langKey := req.Language
	if langKey == "" {
		langKey = "auto"
	}

	res, hit, err := run(ctx, s, pipeline[types.SmartReplies]{
		op:      op,
		feature: config.FeatureSmartReplies,
		key:     []string{req.ConversationID, last.ID, cache.HashText(userID), langKey},
		compute: func(ctx context.Context) (types.SmartReplies, error) {
			var raw struct {
				Replies []types.SmartReply `json:"replies"`
			}
			if err := s.invoke(ctx, config.FeatureSmartReplies, smartRepliesSystem,
				smartRepliesPrompt(history, userID, req.Language), 0.8, 400, &raw); err != nil {
				return types.SmartReplies{}, err
			}
			out := types.SmartReplies{Replies: make([]types.SmartReply, 0, maxSmartReplies)}
			for _, r := range raw.Replies {
				r.Text = strings.TrimSpace(r.Text)
				if r.Text == "" {
					continue
				}
				r.Tone = coerceTone(r.Tone)
				out.Replies = append(out.Replies, r)
				if len(out.Replies) == maxSmartReplies {
					break
				}
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

func coerceTone(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if slices.Contains(ReplyTones, t) {
		return t
	}
	return "neutral"
}
