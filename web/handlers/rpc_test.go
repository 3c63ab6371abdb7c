package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/web/handlers"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResult struct {
	Text string `json:"text"`
	User string `json:"user"`
}

func echo(ctx context.Context, req echoRequest) (*echoResult, error) {
	user, err := auth.Require(ctx, "echo")
	if err != nil {
		return nil, err
	}
	switch req.Text {
	case "invalid":
		return nil, apperr.Invalid("echo", "text is invalid")
	case "denied":
		return nil, apperr.Denied("echo", "not yours")
	case "missing":
		return nil, apperr.NotFound("echo", "no such thing")
	case "slow":
		return nil, apperr.Timeout("echo", context.DeadlineExceeded)
	case "broken":
		return nil, errors.New("db password leaked in error")
	}
	return &echoResult{Text: req.Text, User: user}, nil
}

func newRPCServer(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/api/v1/{operation}", handlers.NewRPCHandler(map[string]handlers.Operation{
		"echo": handlers.Bind(echo),
	}))
	return handlers.RequireAuth(mux, securityDev)
}

func call(t *testing.T, srv http.Handler, method, op, user, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/"+op, strings.NewReader(body))
	if user != "" {
		req.Header.Set(handlers.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func TestRPC_Success(t *testing.T) {
	srv := newRPCServer(t)

	code, body := call(t, srv, http.MethodPost, "echo", "alice", `{"text":"hola"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"text": "hola", "user": "alice"}, body["result"])
}

func TestRPC_EmptyBodyIsZeroRequest(t *testing.T) {
	srv := newRPCServer(t)

	code, body := call(t, srv, http.MethodPost, "echo", "alice", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"text": "", "user": "alice"}, body["result"])
}

func TestRPC_ErrorMapping(t *testing.T) {
	srv := newRPCServer(t)

	tests := []struct {
		name     string
		user     string
		body     string
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"unauthenticated", "", `{"text":"x"}`, http.StatusUnauthorized, "UNAUTHENTICATED", ""},
		{"invalid", "alice", `{"text":"invalid"}`, http.StatusBadRequest, "INVALID_ARGUMENT", "text is invalid"},
		{"malformed", "alice", `{"text":`, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body"},
		{"denied", "alice", `{"text":"denied"}`, http.StatusForbidden, "PERMISSION_DENIED", "not yours"},
		{"not found", "alice", `{"text":"missing"}`, http.StatusNotFound, "NOT_FOUND", "no such thing"},
		{"timeout", "alice", `{"text":"slow"}`, http.StatusGatewayTimeout, "TIMEOUT", ""},
		{"internal", "alice", `{"text":"broken"}`, http.StatusInternalServerError, "INTERNAL", "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := call(t, srv, http.MethodPost, "echo", tt.user, tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantKind, body["code"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["error"])
			}
			assert.NotContains(t, body["error"], "password")
		})
	}
}

func TestRPC_UnknownOperationAndMethod(t *testing.T) {
	srv := newRPCServer(t)

	code, body := call(t, srv, http.MethodPost, "nope", "alice", "{}")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	code, _ = call(t, srv, http.MethodGet, "echo", "alice", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestRPC_BodyTooLarge(t *testing.T) {
	srv := newRPCServer(t)

	big := `{"text":"` + strings.Repeat("a", handlers.MaxBodyBytes) + `"}`
	code, body := call(t, srv, http.MethodPost, "echo", "alice", big)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
}

func TestOperations_RegistersOnlyConfiguredServices(t *testing.T) {
	assert.Empty(t, handlers.Operations(handlers.Services{}))
	assert.Empty(t, handlers.NewRPCHandler(nil).Names())
}
