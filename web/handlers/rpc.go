package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/assistant"
	"github.com/scrypster/lingua/internal/auth"
	"github.com/scrypster/lingua/internal/features"
	"github.com/scrypster/lingua/internal/indexer"
	"github.com/scrypster/lingua/internal/search"
	"github.com/scrypster/lingua/pkg/types"
)

// MaxBodyBytes bounds an RPC request body.
const MaxBodyBytes = 1 << 20

// Operation is one RPC: it decodes its payload and returns the result.
type Operation func(ctx context.Context, payload json.RawMessage) (any, error)

// Bind adapts a typed service method to an Operation. An empty payload
// decodes as the zero request.
func Bind[Req, Resp any](fn func(context.Context, Req) (Resp, error)) Operation {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req Req
		if len(bytes.TrimSpace(payload)) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, apperr.Invalid("rpc.decode", "malformed request body")
			}
		}
		return fn(ctx, req)
	}
}

// Services are the backends of the RPC surface. Nil services leave their
// operations unregistered.
type Services struct {
	Features  *features.Service
	Search    *search.Engine
	Assistant *assistant.Assistant
	Indexer   *indexer.Indexer
}

// BackfillRequest is the payload of backfillEmbeddings. The caller is the
// user whose conversations are backfilled.
type BackfillRequest struct{}

// Operations returns the RPC table keyed by operation name.
func Operations(s Services) map[string]Operation {
	ops := map[string]Operation{}
	if f := s.Features; f != nil {
		ops["detectLanguage"] = Bind(f.DetectLanguage)
		ops["translateMessage"] = Bind(f.TranslateMessage)
		ops["analyzeCulturalContext"] = Bind(f.AnalyzeCulturalContext)
		ops["analyzeFormality"] = Bind(f.AnalyzeFormality)
		ops["adjustFormality"] = Bind(f.AdjustFormality)
		ops["detectSlangIdioms"] = Bind(f.DetectSlangIdioms)
		ops["explainPhrase"] = Bind(f.ExplainPhrase)
		ops["generateSmartReplies"] = Bind(f.GenerateSmartReplies)
		ops["extractStructuredData"] = Bind(f.ExtractStructuredData)
	}
	if s.Search != nil {
		ops["semanticSearch"] = Bind(s.Search.SemanticSearch)
	}
	if a := s.Assistant; a != nil {
		ops["queryAssistant"] = Bind(a.Query)
		ops["summarizeConversation"] = Bind(a.Summarize)
	}
	if ix := s.Indexer; ix != nil {
		ops["backfillEmbeddings"] = Bind(func(ctx context.Context, _ BackfillRequest) (types.BackfillResult, error) {
			userID, err := auth.Require(ctx, "indexer.Backfill")
			if err != nil {
				return types.BackfillResult{}, err
			}
			return ix.Backfill(ctx, userID)
		})
	}
	return ops
}

// RPCHandler serves POST /api/v1/{operation}.
type RPCHandler struct {
	ops map[string]Operation
}

// NewRPCHandler creates a dispatcher over ops.
func NewRPCHandler(ops map[string]Operation) *RPCHandler {
	return &RPCHandler{ops: ops}
}

// Names lists the registered operations in sorted order.
func (h *RPCHandler) Names() []string {
	names := make([]string, 0, len(h.ops))
	for name := range h.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP decodes the body, runs the operation and writes
// {"result": ...} or the classified error.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondStatus(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	name := r.PathValue("operation")
	op, ok := h.ops[name]
	if !ok {
		respondStatus(w, http.StatusNotFound, apperr.KindNotFound.String(), "unknown operation "+name)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, apperr.Invalid("rpc.decode", "request body exceeds %d bytes", MaxBodyBytes))
			return
		}
		respondError(w, r, apperr.Invalid("rpc.decode", "failed to read request body"))
		return
	}

	result, err := op(r.Context(), payload)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ResultResponse{Result: result})
}
