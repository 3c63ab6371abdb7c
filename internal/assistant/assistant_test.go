package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/llm"
	"github.com/scrypster/lingua/internal/storage/sqlite"
	"github.com/scrypster/lingua/pkg/types"
)

type recordingGateway struct {
	mu    sync.Mutex
	reqs  []llm.ChatRequest
	reply string
	err   error
}

func (g *recordingGateway) Invoke(_ context.Context, req llm.ChatRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

func (g *recordingGateway) calls() []llm.ChatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.ChatRequest(nil), g.reqs...)
}

// stubSearcher returns hits restricted to the scope it is given.
type stubSearcher struct {
	hits   []types.SearchResult
	scopes []types.AccessScope
	limits []int
}

func (s *stubSearcher) Search(_ context.Context, _ string, scope types.AccessScope, limit int) ([]types.SearchResult, error) {
	s.scopes = append(s.scopes, scope)
	s.limits = append(s.limits, limit)
	allowed := map[string]bool{}
	for _, id := range scope.ConversationIDs {
		allowed[id] = true
	}
	var out []types.SearchResult
	for _, h := range s.hits {
		if allowed[h.ParentID] {
			out = append(out, h)
		}
	}
	return out, nil
}

type fixture struct {
	assistant *Assistant
	gateway   *recordingGateway
	searcher  *stubSearcher
	msgs      *sqlite.MessageStore
	conv      string
	empty     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		gateway:  &recordingGateway{reply: "  an answer  "},
		searcher: &stubSearcher{},
		msgs:     sqlite.NewMessageStore(db),
	}
	conv := &types.Conversation{CreatedBy: "alice"}
	require.NoError(t, f.msgs.CreateConversation(ctx, conv))
	require.NoError(t, f.msgs.AddParticipant(ctx, conv.ID, "bob"))
	empty := &types.Conversation{CreatedBy: "alice"}
	require.NoError(t, f.msgs.CreateConversation(ctx, empty))
	f.conv, f.empty = conv.ID, empty.ID

	f.assistant, err = New(Config{Gateway: f.gateway, Search: f.searcher, Messages: f.msgs, Model: "chat-model"})
	require.NoError(t, err)
	return f
}

func (f *fixture) post(t *testing.T, sender, text string) {
	t.Helper()
	require.NoError(t, f.msgs.CreateMessage(context.Background(), &types.Message{
		ConversationID: f.conv, SenderID: sender, Text: text,
	}))
}

func TestFormatContext(t *testing.T) {
	rc := formatContext([]types.SearchResult{
		{ID: "m1", Text: "dinner at 7", Similarity: 0.8734},
		{ID: "m2", Text: "see you", Similarity: 0.5},
	})
	assert.Equal(t, "[1] (similarity 0.87) dinner at 7\n[2] (similarity 0.50) see you", rc.Text)
	assert.Equal(t, []string{"m1", "m2"}, rc.Sources)

	empty := formatContext(nil)
	assert.Empty(t, empty.Text)
	assert.Nil(t, empty.Sources)
}

func TestQuery_GroundsInContext(t *testing.T) {
	f := newFixture(t)
	f.searcher.hits = []types.SearchResult{
		{ID: "m1", ParentID: f.conv, Text: "dinner at 7", Similarity: 0.9},
		{ID: "x1", ParentID: "someone-elses", Text: "secret", Similarity: 0.99},
	}
	ctx := auth.WithUser(context.Background(), "alice")

	resp, err := f.assistant.Query(ctx, QueryRequest{Query: "when is dinner?"})
	require.NoError(t, err)
	assert.Equal(t, "an answer", resp.Response)
	assert.Equal(t, []string{"m1"}, resp.Sources)

	require.Len(t, f.searcher.limits, 1)
	assert.Equal(t, ContextLimit, f.searcher.limits[0])
	assert.Equal(t, "alice", f.searcher.scopes[0].UserID)

	calls := f.gateway.calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "assistant_query", req.Operation)
	assert.Equal(t, "chat-model", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Messages, 3)
	assert.Contains(t, req.Messages[1].Content, "[1] (similarity 0.90) dinner at 7")
	assert.NotContains(t, req.Messages[1].Content, "secret")
	assert.Equal(t, "when is dinner?", req.Messages[2].Content)
}

func TestQuery_WithoutContext(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithUser(context.Background(), "alice")

	resp, err := f.assistant.Query(ctx, QueryRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Nil(t, resp.Sources)

	calls := f.gateway.calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Messages, 2, "persona and query only")
}

func TestQuery_NeverCached(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithUser(context.Background(), "alice")

	for range 2 {
		_, err := f.assistant.Query(ctx, QueryRequest{Query: "same question"})
		require.NoError(t, err)
	}
	assert.Len(t, f.gateway.calls(), 2)
}

func TestQuery_Errors(t *testing.T) {
	f := newFixture(t)
	alice := auth.WithUser(context.Background(), "alice")

	tests := []struct {
		name string
		ctx  context.Context
		req  QueryRequest
		want apperr.Kind
	}{
		{"anonymous", context.Background(), QueryRequest{Query: "hi"}, apperr.KindUnauthenticated},
		{"blank query", alice, QueryRequest{Query: "   "}, apperr.KindInvalidArgument},
		{"long query", alice, QueryRequest{Query: strings.Repeat("é", MaxQueryLength+1)}, apperr.KindInvalidArgument},
		{"unknown conversation", alice, QueryRequest{Query: "hi", ConversationID: "nope"}, apperr.KindNotFound},
		{"not a participant", auth.WithUser(context.Background(), "mallory"), QueryRequest{Query: "hi", ConversationID: f.conv}, apperr.KindPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.assistant.Query(tt.ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.gateway.calls())

	_, err := f.assistant.Query(alice, QueryRequest{Query: strings.Repeat("é", MaxQueryLength)})
	require.NoError(t, err, "the limit counts characters, not bytes")
}

func TestQuery_GatewayFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("boom")

	_, err := f.assistant.Query(auth.WithUser(context.Background(), "alice"), QueryRequest{Query: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	f.gateway.reply = "They planned dinner."
	f.post(t, "alice", "dinner tonight?")
	f.post(t, "bob", "sure, 7pm")
	f.post(t, "bob", "   ")

	sum, err := f.assistant.Summarize(auth.WithUser(context.Background(), "bob"), SummarizeRequest{ConversationID: f.conv})
	require.NoError(t, err)
	assert.Equal(t, "They planned dinner.", sum.Summary)
	assert.Equal(t, 2, sum.MessageCount)

	calls := f.gateway.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "summarize", calls[0].Operation)
	assert.InDelta(t, 0.3, calls[0].Temperature, 1e-9)
	assert.Equal(t, 500, calls[0].MaxTokens)
	transcript := calls[0].Messages[1].Content
	assert.Less(t, strings.Index(transcript, "alice: dinner tonight?"), strings.Index(transcript, "Me: sure, 7pm"))
}

func TestSummarize_UsesLatestWindow(t *testing.T) {
	f := newFixture(t)
	for i := range SummaryWindow + 5 {
		f.post(t, "alice", fmt.Sprintf("message %03d", i))
	}

	sum, err := f.assistant.Summarize(auth.WithUser(context.Background(), "alice"), SummarizeRequest{ConversationID: f.conv})
	require.NoError(t, err)
	assert.Equal(t, SummaryWindow, sum.MessageCount)

	transcript := f.gateway.calls()[0].Messages[1].Content
	assert.NotContains(t, transcript, "message 004")
	assert.Contains(t, transcript, "message 005")
	assert.Contains(t, transcript, fmt.Sprintf("message %03d", SummaryWindow+4))
}

func TestSummarize_EmptyConversation(t *testing.T) {
	f := newFixture(t)

	sum, err := f.assistant.Summarize(auth.WithUser(context.Background(), "alice"), SummarizeRequest{ConversationID: f.empty})
	require.NoError(t, err)
	assert.Equal(t, types.ConversationSummary{}, *sum)
	assert.Empty(t, f.gateway.calls())
}

func TestSummarize_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.assistant.Summarize(context.Background(), SummarizeRequest{ConversationID: f.conv})
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	_, err = f.assistant.Summarize(auth.WithUser(context.Background(), "alice"), SummarizeRequest{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.assistant.Summarize(auth.WithUser(context.Background(), "mallory"), SummarizeRequest{ConversationID: f.conv})
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	_, err = f.assistant.Summarize(auth.WithUser(context.Background(), "alice"), SummarizeRequest{ConversationID: "missing"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
