package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	logpkg "github.com/benvon/situation-monitor/internal/logger"
	"github.com/benvon/situation-monitor/internal/request"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "o3"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a single completion call. Reasoning models can take a while.
	DefaultTimeout = 120 * time.Second

	// ReportSituationTool is the name of the function the model is forced to call.
	ReportSituationTool = "reportSituation"

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

const situationSystemPrompt = `You are an expert comedian and analyst. Your job is to read a user's recent posts, ` +
	`find the most popular ones, and decide the main "situation" they seem to be "monitoring". ` +
	`A situation is a short, funny noun phrase (for example "the stock market", "the local raccoon problem", ` +
	`"the bad first dates", "the getting fired from your job"). Don't be afraid to be politically incorrect. ` +
	`Keep the situation short and to the point. Never mention the user's name or handle. ` +
	`Reference specific posts and USE THEIR OWN WORDS over general concepts, so the user feels spoken to directly. ` +
	`You must also pick the single most representative post URL for this situation; each post lists its URL.`

// OpenAIProvider implements SituationProvider using OpenAI chat completions with a forced tool call.
type OpenAIProvider struct {
	client    openai.Client
	apiKey    string
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	// The analysis path does not retry; a failed call surfaces to the caller.
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		apiKey:    apiKey,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// ReportSituation asks the model for the user's situation and the most representative post URL.
// It returns ErrNoToolCall when the model does not call reportSituation or leaves the situation empty.
func (p *OpenAIProvider) ReportSituation(ctx context.Context, prompt SituationPrompt) (*SituationReport, error) {
	userMessage := buildSituationUserMessage(prompt)
	req := buildSituationRequest(p.model, userMessage)
	requestID := request.RequestIDFromContext(ctx)

	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "report_situation"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(userMessage)),
			zap.String("prompt_preview", excerpt(userMessage, true)),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error",
			zap.String("operation", "report_situation"),
			zap.String("model", p.model),
			zap.String("error", redactKey(logpkg.SanitizeError(err), p.apiKey)),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to report situation: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to report situation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	report, raw, err := parseSituationToolCall(resp.Choices[0].Message.ToolCalls)
	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "report_situation"),
			zap.String("model", p.model),
			zap.Int("response_length", len(raw)),
			zap.String("response_preview", excerpt(raw, true)),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

func buildSituationUserMessage(prompt SituationPrompt) string {
	var b strings.Builder
	b.WriteString("Here are the user's details:\n\n")
	b.WriteString(prompt.UserDetails)
	b.WriteString("\n\nHere are their posts with their URLs:\n\n")
	b.WriteString(prompt.Posts)
	return b.String()
}

func buildSituationRequest(model, userMessage string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(situationSystemPrompt),
			openai.UserMessage(userMessage),
		},
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        ReportSituationTool,
				Description: openai.String("Reports the identified situation and the most representative post."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"situation": map[string]any{
							"type":        "string",
							"description": `A short noun phrase for the situation being monitored, starting with "the". E.g. "the upcoming election" or "the neighborhood cat drama".`,
						},
						"representativeTweetUrl": map[string]any{
							"type":        "string",
							"description": "The full URL of the single post that best represents the situation.",
						},
					},
					"required": []string{"situation", "representativeTweetUrl"},
				},
			}),
		},
		ToolChoice: openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
			Name: ReportSituationTool,
		}),
	}
}

// parseSituationToolCall extracts the first reportSituation call. The raw arguments are
// returned for logging even when parsing fails.
func parseSituationToolCall(calls []openai.ChatCompletionMessageToolCallUnion) (*SituationReport, string, error) {
	for _, call := range calls {
		if call.Function.Name != ReportSituationTool {
			continue
		}
		raw := call.Function.Arguments
		var report SituationReport
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, raw, fmt.Errorf("failed to parse %s arguments: %w", ReportSituationTool, err)
		}
		if strings.TrimSpace(report.Situation) == "" {
			return nil, raw, ErrNoToolCall
		}
		return &report, raw, nil
	}
	return nil, "", ErrNoToolCall
}
