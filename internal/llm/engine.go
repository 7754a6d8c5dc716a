// Package llm talks to an OpenAI-compatible chat completions endpoint
// (LM Studio locally) for intent proposals, conversation, and result
// summaries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"finchat-assistant/internal/action"
	"finchat-assistant/internal/common/config"
	"finchat-assistant/internal/common/errors"
	"finchat-assistant/internal/common/httpclient"
	"finchat-assistant/internal/common/logger"
)

const systemPrompt = `You are FinChat, an AI financial advisor for India.

Provide clear, accurate financial information. Consider risk tolerance and time horizon.

Guidelines:
- Be concise (2-4 sentences max)
- Use Indian context (₹, lakhs, crores)
- Cite sources when relevant
- Don't invent numbers
- For tax advice, mention consulting a CA

Topics: stocks, mutual funds, SIP, EMI, retirement, tax saving, portfolio.`

const actionPrompt = `Analyze query and output JSON if it maps to an action, otherwise answer directly.

Actions:
- get_stock_price: stock prices
- get_stock_metric: P/E, dividend yield
- get_etf_price: ETF prices
- search_mutual_fund: specific fund NAV
- get_top_funds: best funds by category
- get_portfolio_recommendation: portfolio suggestions
- calculate_sip: SIP calculations
- calculate_emi: loan EMI
- calculate_retirement: retirement corpus

JSON format (single line, no markdown):
{"action":"action_name","parameters":{...}}

Pass exact names. Don't normalize tickers.

For knowledge queries (what is, explain), answer directly without JSON.`

// apology is the fixed degradation message when the model is
// unreachable.
const apology = "I'm having trouble connecting to the AI model. Please check if LM Studio is running."

// Response is the engine's answer to a routed query: either a
// structured action proposal, conversational content, or a failure.
type Response struct {
	Action     action.Kind
	Parameters map[string]interface{}
	Content    string
	Err        error
}

// IsAction reports whether the response proposes an executable action.
func (r Response) IsAction() bool {
	return r.Action != "" && r.Parameters != nil
}

// Engine is the chat completions client.
type Engine struct {
	cfg    config.LLMConfig
	client *httpclient.Client
	logger logger.Logger
}

func NewEngine(cfg config.LLMConfig, log logger.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		client: httpclient.NewClient(config.GetDuration(cfg.Timeout)),
		logger: log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Generate performs one completion. In JSON mode the action prompt is
// prepended and a lower temperature and token cap apply.
func (e *Engine) Generate(ctx context.Context, prompt string, jsonMode bool, contextText string, maxTokens int) (string, error) {
	var full strings.Builder
	var temperature float64

	if jsonMode {
		full.WriteString(actionPrompt + "\n\n")
		if contextText != "" {
			full.WriteString("Context: " + truncate(contextText, 500) + "\n\n")
		}
		full.WriteString("Query: " + prompt)
		temperature = e.cfg.JSONTemperature
		if maxTokens > e.cfg.QueryMaxTokens {
			maxTokens = e.cfg.QueryMaxTokens
		}
	} else {
		full.WriteString(systemPrompt + "\n\n")
		if contextText != "" {
			full.WriteString("Context: " + truncate(contextText, 800) + "\n\n")
		}
		full.WriteString("User: " + prompt)
		temperature = e.cfg.ChatTemperature
		if maxTokens > e.cfg.ConversationTokens {
			maxTokens = e.cfg.ConversationTokens
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       e.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: full.String()}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.DoWithContext(ctx, req)
	if err != nil {
		return "", errors.NewLLMUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.NewLLMUnavailableError(fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.NewLLMParsingFailedError(err.Error())
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewLLMParsingFailedError("completion returned no choices")
	}

	result := strings.TrimSpace(parsed.Choices[0].Message.Content)
	e.logger.Debug("LLM response", map[string]interface{}{
		"chars":     len(result),
		"json_mode": jsonMode,
	})
	return result, nil
}

// GetResponse tries action mode first; a completion that is not a valid
// action proposal degrades to a conversational completion. Transport
// failures produce the fixed apology, never an error to the caller.
func (e *Engine) GetResponse(ctx context.Context, query, ragContext, profileSummary string) Response {
	var fullContext strings.Builder
	if ragContext != "" {
		fullContext.WriteString(truncate(ragContext, 600) + "\n")
	}
	if profileSummary != "" {
		fullContext.WriteString(truncate(profileSummary, 200))
	}

	raw, err := e.Generate(ctx, query, true, fullContext.String(), e.cfg.QueryMaxTokens)
	if err != nil {
		e.logger.Error("Action mode completion failed", map[string]interface{}{"error": err.Error()})
		return Response{Err: err, Content: apology}
	}

	if proposal := e.extractProposal(raw); proposal != nil {
		e.logger.Info("Action detected by LLM", map[string]interface{}{"action": proposal.Action})
		return *proposal
	}

	content, err := e.Generate(ctx, query, false, fullContext.String(), e.cfg.ConversationTokens)
	if err != nil {
		e.logger.Error("Conversation completion failed", map[string]interface{}{"error": err.Error()})
		return Response{Err: err, Content: apology}
	}
	return Response{Content: content}
}

var jsonBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile(`(?s)(\{.*?\})`),
}

// extractProposal pulls an action proposal out of raw model output,
// tolerating markdown code fences, and validates it against the
// proposal schema. Returns nil when no valid proposal is present.
func (e *Engine) extractProposal(text string) *Response {
	candidates := []string{text}
	for _, re := range jsonBlockPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			candidates = append(candidates, m[1])
		}
	}

	for _, candidate := range candidates {
		var parsed struct {
			Action     string                 `json:"action"`
			Parameters map[string]interface{} `json:"parameters"`
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		if err := ValidateProposal(candidate); err != nil {
			e.logger.Debug("Rejected action proposal", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		return &Response{
			Action:     action.Kind(parsed.Action),
			Parameters: parsed.Parameters,
		}
	}
	return nil
}

// SummarizeData produces a short natural-language summary of an action
// result, degrading to a deterministic template when the model is
// unavailable.
func (e *Engine) SummarizeData(ctx context.Context, data action.Result, originalQuery string) string {
	if data.IsError() {
		return fmt.Sprintf("Sorry, I couldn't find information for '%s'. %s", originalQuery, data.ErrorMessage())
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return FallbackSummary(data, originalQuery)
	}

	prompt := fmt.Sprintf(`Summarize for: "%s"

Data: %s

Requirements:
- Use exact asset name from query
- Include key metrics
- 2-3 sentences max
- Use ₹ for currency
- Don't use ticker symbols

Summary:`, originalQuery, truncate(string(encoded), 1000))

	summary, err := e.Generate(ctx, prompt, false, "", e.cfg.SummaryMaxTokens)
	if err != nil {
		e.logger.Warn("Summary generation failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return FallbackSummary(data, originalQuery)
	}
	return summary
}
