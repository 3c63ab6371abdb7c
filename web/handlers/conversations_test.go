package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/internal/storage/sqlite"
	"github.com/scrypster/lingua/pkg/types"
	"github.com/scrypster/lingua/web/handlers"
)

var securityDev = config.SecurityConfig{Mode: "development"}

type recordingPublisher struct {
	mu        sync.Mutex
	published []types.Message
	accept    bool
}

func (p *recordingPublisher) PublishMessageCreated(msg types.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	return p.accept
}

type convFixture struct {
	handler   http.Handler
	store     *sqlite.MessageStore
	publisher *recordingPublisher
}

func newConvFixture(t *testing.T) *convFixture {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &convFixture{store: sqlite.NewMessageStore(db), publisher: &recordingPublisher{accept: true}}
	h := handlers.NewConversationHandlers(f.store, f.publisher)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/conversations", h.CreateConversation)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", h.PostMessage)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", h.ListMessages)
	f.handler = handlers.RequireAuth(mux, securityDev)
	return f
}

func (f *convFixture) do(t *testing.T, method, path, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(handlers.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func (f *convFixture) conversation(t *testing.T, owner string, participants ...string) string {
	t.Helper()
	body, _ := json.Marshal(handlers.CreateConversationRequest{Title: "trip", Participants: participants})
	code, out := f.do(t, http.MethodPost, "/api/v1/conversations", owner, string(body))
	require.Equal(t, http.StatusCreated, code, out)
	return out["result"].(map[string]any)["id"].(string)
}

func TestCreateConversation(t *testing.T) {
	f := newConvFixture(t)

	code, out := f.do(t, http.MethodPost, "/api/v1/conversations", "alice", `{"title":"trip","participants":["bob"]}`)
	require.Equal(t, http.StatusCreated, code)
	result := out["result"].(map[string]any)
	assert.Equal(t, "trip", result["title"])
	assert.Equal(t, "alice", result["createdBy"])
	assert.ElementsMatch(t, []any{"alice", "bob"}, result["participants"])

	code, out = f.do(t, http.MethodPost, "/api/v1/conversations", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHENTICATED", out["code"])

	code, out = f.do(t, http.MethodPost, "/api/v1/conversations", "alice", `{"participants":[""]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", out["code"])
}

func TestPostMessage_CommitsThenPublishes(t *testing.T) {
	f := newConvFixture(t)
	conv := f.conversation(t, "alice", "bob")

	code, out := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv+"/messages", "bob", `{"text":"dinner at 7?","language":"en"}`)
	require.Equal(t, http.StatusCreated, code)
	result := out["result"].(map[string]any)
	id := result["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "bob", result["senderId"])

	stored, err := f.store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "dinner at 7?", stored.Text)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, id, f.publisher.published[0].ID)
	assert.Equal(t, conv, f.publisher.published[0].ConversationID)
}

func TestPostMessage_FullQueueDoesNotFailWrite(t *testing.T) {
	f := newConvFixture(t)
	f.publisher.accept = false
	conv := f.conversation(t, "alice")

	code, _ := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv+"/messages", "alice", `{"text":"hi"}`)
	assert.Equal(t, http.StatusCreated, code)
}

func TestPostMessage_Authorization(t *testing.T) {
	f := newConvFixture(t)
	conv := f.conversation(t, "alice")

	tests := []struct {
		name     string
		path     string
		user     string
		body     string
		wantCode int
		wantKind string
	}{
		{"anonymous", "/api/v1/conversations/" + conv + "/messages", "", `{"text":"hi"}`, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"outsider", "/api/v1/conversations/" + conv + "/messages", "mallory", `{"text":"hi"}`, http.StatusForbidden, "PERMISSION_DENIED"},
		{"unknown conversation", "/api/v1/conversations/nope/messages", "alice", `{"text":"hi"}`, http.StatusNotFound, "NOT_FOUND"},
		{"bad language", "/api/v1/conversations/" + conv + "/messages", "alice", `{"text":"hi","language":"English"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"malformed", "/api/v1/conversations/" + conv + "/messages", "alice", `{"text":`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := f.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantKind, out["code"])
		})
	}
	assert.Empty(t, f.publisher.published)
}

func TestListMessages(t *testing.T) {
	f := newConvFixture(t)
	conv := f.conversation(t, "alice", "bob")
	for _, text := range []string{"one", "two", "three"} {
		code, _ := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv+"/messages", "alice", `{"text":"`+text+`"}`)
		require.Equal(t, http.StatusCreated, code)
	}

	code, out := f.do(t, http.MethodGet, "/api/v1/conversations/"+conv+"/messages?limit=2", "bob", "")
	require.Equal(t, http.StatusOK, code)
	page := out["result"].(map[string]any)
	msgs := page["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].(map[string]any)["text"])
	assert.Equal(t, true, page["hasMore"])

	code, out = f.do(t, http.MethodGet, "/api/v1/conversations/"+conv+"/messages?offset=2", "bob", "")
	require.Equal(t, http.StatusOK, code)
	page = out["result"].(map[string]any)
	assert.Len(t, page["messages"].([]any), 1)
	assert.Equal(t, false, page["hasMore"])

	code, _ = f.do(t, http.MethodGet, "/api/v1/conversations/"+conv+"/messages", "mallory", "")
	assert.Equal(t, http.StatusForbidden, code)
}
