// Package router resolves a user query into a response: an ordered
// detector chain claims directly answerable intents, an executor runs
// the claimed action, and everything left over goes to the LLM, which
// may answer conversationally or propose an action itself.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	apperrors "finchat-assistant/internal/common/errors"
	"finchat-assistant/internal/common/logger"
	"finchat-assistant/internal/common/metrics"
	"finchat-assistant/internal/llm"
	"finchat-assistant/internal/profile"
)

// Response type markers.
const (
	TypeFinance        = "finance_response"
	TypeConversational = "conversational"
	TypeError          = "error"
)

const llmUnavailableMessage = "I'm having trouble processing your query. The AI service may be unavailable."

// Response is the router's answer to a single query.
type Response struct {
	Type     string        `json:"type"`
	Response string        `json:"response"`
	Data     action.Result `json:"data"`
}

// LanguageModel is the slice of the LLM engine the router drives.
type LanguageModel interface {
	GetResponse(ctx context.Context, query, ragContext, profileSummary string) llm.Response
	SummarizeData(ctx context.Context, data action.Result, originalQuery string) string
}

// KnowledgeSource provides document context for educational queries.
type KnowledgeSource interface {
	GetContext(ctx context.Context, query string) string
}

// ProfileSource provides per-user defaults and conversation context.
type ProfileSource interface {
	Snapshot(ctx context.Context, userID string) profile.Snapshot
	GetContextSummary(ctx context.Context, userID string) string
}

// Router wires the detection chain, the executor, and the LLM fallback
// into the single query entry point.
type Router struct {
	cfg       config.RouterConfig
	detectors *Detectors
	executor  *Executor
	llm       LanguageModel
	knowledge KnowledgeSource
	profiles  ProfileSource
	logger    logger.Logger
}

func New(cfg config.RouterConfig, detectors *Detectors, executor *Executor,
	model LanguageModel, knowledge KnowledgeSource, profiles ProfileSource,
	log logger.Logger) *Router {
	return &Router{
		cfg:       cfg,
		detectors: detectors,
		executor:  executor,
		llm:       model,
		knowledge: knowledge,
		profiles:  profiles,
		logger:    log,
	}
}

// knowledgeTriggers mark educational queries that benefit from
// document context before the LLM sees them.
var knowledgeTriggers = []string{
	"what is", "explain", "difference", "how does", "why",
	"tell me about", "define", "meaning",
}

func isKnowledgeQuery(q string) bool {
	return containsAny(strings.ToLower(q), knowledgeTriggers...)
}

// HandleQuery resolves one user query end to end. It never returns an
// error: every failure mode collapses into an error-typed Response.
func (r *Router) HandleQuery(ctx context.Context, query, userID string) (resp Response) {
	start := time.Now()
	requestID := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Query handling panicked", map[string]interface{}{
				"request_id": requestID,
				"panic":      fmt.Sprint(rec),
			})
			resp = Response{
				Type:     TypeError,
				Response: fmt.Sprintf("An error occurred: %v", rec),
				Data:     action.Result{"error": fmt.Sprint(rec)},
			}
		}
		metrics.QueryDuration.WithLabelValues(resp.Type).Observe(time.Since(start).Seconds())
	}()

	r.logger.Info("Handling query", map[string]interface{}{
		"request_id": requestID,
		"user_id":    userID,
		"query":      query,
	})

	snap := r.profiles.Snapshot(ctx, userID)

	detected, decline := r.detectors.Detect(query, snap)
	if detected != nil {
		metrics.QueriesRouted.WithLabelValues(string(detected.Action)).Inc()
		return r.respondWithAction(ctx, requestID, detected, query)
	}
	if decline != nil && r.cfg.StrictBounds {
		verr := apperrors.NewValidationError(decline.msg)
		r.logger.Info("Query declined on bounds", map[string]interface{}{
			"request_id": requestID,
			"detector":   decline.detector,
			"error":      verr.Error(),
		})
		return Response{
			Type:     TypeError,
			Response: decline.msg,
			Data:     action.Result{"error": decline.msg},
		}
	}

	return r.respondWithLLM(ctx, requestID, query, userID)
}

// respondWithAction executes an action and narrates its result.
func (r *Router) respondWithAction(ctx context.Context, requestID string, detected *action.Detected, query string) Response {
	result := r.executor.Execute(ctx, detected)
	summary := r.llm.SummarizeData(ctx, result, query)

	r.logger.Info("Action completed", map[string]interface{}{
		"request_id": requestID,
		"action":     string(detected.Action),
		"failed":     result.IsError(),
	})

	return Response{Type: TypeFinance, Response: summary, Data: result}
}

// respondWithLLM handles queries no detector claimed. The model either
// answers directly or proposes an action of its own.
func (r *Router) respondWithLLM(ctx context.Context, requestID, query, userID string) Response {
	userContext := r.profiles.GetContextSummary(ctx, userID)

	ragContext := ""
	if isKnowledgeQuery(query) {
		ragContext = r.knowledge.GetContext(ctx, query)
	}

	modelResp := r.llm.GetResponse(ctx, query, ragContext, userContext)
	if modelResp.Err != nil {
		metrics.LLMFallbacks.WithLabelValues("error").Inc()
		r.logger.Error("LLM fallback failed", map[string]interface{}{
			"request_id": requestID,
			"error":      modelResp.Err.Error(),
		})
		return Response{
			Type:     TypeError,
			Response: llmUnavailableMessage,
			Data:     action.Result{"error": modelResp.Err.Error()},
		}
	}

	if modelResp.IsAction() {
		metrics.LLMFallbacks.WithLabelValues("action").Inc()
		metrics.QueriesRouted.WithLabelValues(string(modelResp.Action)).Inc()
		detected := &action.Detected{Action: modelResp.Action, Parameters: modelResp.Parameters}
		return r.respondWithAction(ctx, requestID, detected, query)
	}

	metrics.LLMFallbacks.WithLabelValues("conversational").Inc()
	content := strings.TrimSpace(modelResp.Content)
	if content == "" {
		content = "I'm not sure how to help with that."
	}
	return Response{Type: TypeConversational, Response: content, Data: action.Result{}}
}
