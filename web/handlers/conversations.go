package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// Publisher receives message-created events. *engine.Engine implements it.
type Publisher interface {
	PublishMessageCreated(msg types.Message) bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateConversationRequest is the body of POST /api/v1/conversations.
type CreateConversationRequest struct {
	Title        string   `json:"title" validate:"max=200"`
	Participants []string `json:"participants" validate:"max=100,dive,required,max=128"`
}

// ConversationResponse is a conversation with its participants.
type ConversationResponse struct {
	types.Conversation
	Participants []string `json:"participants"`
}

// PostMessageRequest is the body of POST /api/v1/conversations/{id}/messages.
type PostMessageRequest struct {
	Text     string `json:"text" validate:"max=10000"`
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=3,alpha,lowercase"`
}

// MessagePage is one page of GET /api/v1/conversations/{id}/messages.
type MessagePage struct {
	Messages   []types.Message `json:"messages"`
	NextOffset int             `json:"nextOffset"`
	HasMore    bool            `json:"hasMore"`
}

// ConversationHandlers serve the conversation endpoints that stand in for the
// messaging backend's write path.
type ConversationHandlers struct {
	store     storage.MessageStore
	publisher Publisher
}

// NewConversationHandlers creates the handlers. publisher may be nil.
func NewConversationHandlers(store storage.MessageStore, publisher Publisher) *ConversationHandlers {
	return &ConversationHandlers{store: store, publisher: publisher}
}

// CreateConversation handles POST /api/v1/conversations. The caller becomes
// the creator and a participant.
func (h *ConversationHandlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	const op = "conversations.Create"
	userID, err := auth.Require(r.Context(), op)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req CreateConversationRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		respondError(w, r, err)
		return
	}

	conv := &types.Conversation{Title: strings.TrimSpace(req.Title), CreatedBy: userID}
	if err := h.store.CreateConversation(r.Context(), conv); err != nil {
		respondError(w, r, apperr.Internal(op, "failed to create conversation", err))
		return
	}
	for _, p := range req.Participants {
		if err := h.store.AddParticipant(r.Context(), conv.ID, strings.TrimSpace(p)); err != nil {
			respondError(w, r, apperr.Internal(op, "failed to add participant", err))
			return
		}
	}
	members, err := h.store.ListParticipants(r.Context(), conv.ID)
	if err != nil {
		respondError(w, r, apperr.Internal(op, "failed to list participants", err))
		return
	}
	respondJSON(w, http.StatusCreated, ResultResponse{Result: ConversationResponse{Conversation: *conv, Participants: members}})
}

// PostMessage handles POST /api/v1/conversations/{id}/messages. The message
// is committed and the response written before the message-created event is
// published; a full queue never fails the write.
func (h *ConversationHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	const op = "conversations.PostMessage"
	userID, convID, err := h.participant(r, op)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req PostMessageRequest
	if err := decodeBody(w, r, op, &req); err != nil {
		respondError(w, r, err)
		return
	}

	msg := &types.Message{
		ConversationID: convID,
		SenderID:       userID,
		Text:           req.Text,
		Language:       req.Language,
	}
	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		respondError(w, r, apperr.Internal(op, "failed to create message", err))
		return
	}
	respondJSON(w, http.StatusCreated, ResultResponse{Result: msg})

	if h.publisher != nil && !h.publisher.PublishMessageCreated(*msg) {
		loggerFrom(r.Context()).Warn("handlers: message event not queued", "message_id", msg.ID)
	}
}

// ListMessages handles GET /api/v1/conversations/{id}/messages?limit=&offset=.
func (h *ConversationHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	const op = "conversations.ListMessages"
	_, convID, err := h.participant(r, op)
	if err != nil {
		respondError(w, r, err)
		return
	}
	opts := storage.ListOptions{
		Limit:  parseInt(r.URL.Query().Get("limit"), 50),
		Offset: parseInt(r.URL.Query().Get("offset"), 0),
	}
	page, err := h.store.ListMessages(r.Context(), convID, opts)
	if err != nil {
		respondError(w, r, apperr.Internal(op, "failed to list messages", err))
		return
	}
	msgs := page.Items
	if msgs == nil {
		msgs = []types.Message{}
	}
	respondJSON(w, http.StatusOK, ResultResponse{Result: MessagePage{
		Messages:   msgs,
		NextOffset: page.NextOffset,
		HasMore:    page.HasMore,
	}})
}

// participant authenticates the caller and checks membership of the
// conversation named in the path.
func (h *ConversationHandlers) participant(r *http.Request, op string) (string, string, error) {
	userID, err := auth.Require(r.Context(), op)
	if err != nil {
		return "", "", err
	}
	convID := r.PathValue("id")
	ok, err := h.store.IsParticipant(r.Context(), convID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", apperr.NotFound(op, "conversation %s not found", convID)
	}
	if err != nil {
		return "", "", apperr.Internal(op, "failed to check conversation membership", err)
	}
	if !ok {
		return "", "", apperr.Denied(op, "not a participant of conversation %s", convID)
	}
	return userID, convID, nil
}

// decodeBody decodes and validates a JSON body. An empty body decodes as the
// zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid(op, "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Invalid(op, "invalid field %s", verrs[0].Namespace())
		}
		return apperr.Invalid(op, "invalid request")
	}
	return nil
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}
