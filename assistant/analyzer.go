// Package assistant talks to the AI support model and runs the shell
// commands it suggests once an operator approves them.
package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	oaishared "github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

type ResultType string

const (
	ResultAnalysis ResultType = "analysis"
	ResultQuestion ResultType = "question"
	ResultError    ResultType = "error"
)

type Analysis struct {
	Title             string                  `json:"title" yaml:"title"`
	Description       string                  `json:"description" yaml:"description"`
	Resolution        string                  `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Status            remotedesk.TicketStatus `json:"status" yaml:"status"`
	Priority          remotedesk.Priority     `json:"priority" yaml:"priority"`
	SuggestedCommands []string                `json:"suggestedScript,omitempty" yaml:"suggestedScript,omitempty"`
}

type ConversationResult struct {
	Type     ResultType `json:"type"`
	Analysis *Analysis  `json:"data,omitempty"`
	Question string     `json:"question,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// Recording is the screen capture attached to a report. Image data is sent
// inline; other media is described by name and size only.
type Recording struct {
	Name     string
	MIMEType string
	Data     []byte
}

type Analyzer interface {
	StartConversation(ctx context.Context, rec *Recording, prompt string) ConversationResult
	ContinueConversation(ctx context.Context, answer string) ConversationResult
}

type SolutionFinder interface {
	FindSolutions(ctx context.Context, query string) ([]remotedesk.Solution, error)
}

const maxContextSolutions = 5

const systemInstruction = `You are "FixDesk AI", an IT support assistant. Analyze the user's IT problem and produce a structured ticket.

1. Full analysis: when you have enough information, diagnose the root cause and answer with a JSON object holding "title" (max 10 words), "description", "status" and "priority". Add "resolution" when a clear fix exists.
2. Status is "AI Resolved" when the fix is simple and likely to work, "Needs Attention" when the user must act, "New" when a human must review it. Priority is "Low", "Medium" or "High".
3. When the fix is a short sequence of safe, non-destructive shell commands, list them in "suggestedScript" as an array of strings.
4. When critical information is missing, answer with a JSON object holding only "clarifyingQuestion". Do not ask when a reasonable inference is possible.
5. Answer with a single JSON object and nothing else.`

type OpenAIAnalyzer struct {
	logger    shared.LoggerAdapter
	client    openai.Client
	model     string
	solutions SolutionFinder

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
	prompt  string
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)

// NewOpenAIAnalyzer creates an analyzer. solutions may be nil.
func NewOpenAIAnalyzer(logger shared.LoggerAdapter, apiKey, baseURL, model string, solutions SolutionFinder, opts ...option.RequestOption) (*OpenAIAnalyzer, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if apiKey == "" {
		return nil, shared.ErrNoAPIKey
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIAnalyzer{
		logger:    logger.With(zap.String("component", "analyzer"), zap.String("model", model)),
		client:    openai.NewClient(reqOpts...),
		model:     model,
		solutions: solutions,
	}, nil
}

// StartConversation begins a new conversation, discarding any previous one.
func (a *OpenAIAnalyzer) StartConversation(ctx context.Context, rec *Recording, prompt string) ConversationResult {
	instruction := systemInstruction + a.solutionsContext(ctx, prompt)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(fmt.Sprintf("User's problem description: %q", prompt)),
	}
	if rec != nil && len(rec.Data) > 0 {
		if strings.HasPrefix(rec.MIMEType, "image/") {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:" + rec.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(rec.Data),
			}))
		} else {
			parts = append(parts, openai.TextContentPart(fmt.Sprintf(
				"A screen recording %q (%s, %d bytes) was captured with the report.", rec.Name, rec.MIMEType, len(rec.Data),
			)))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompt = prompt
	a.history = []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(instruction),
		openai.UserMessage(parts),
	}
	a.logger.Info("starting conversation", zap.String("prompt", prompt))
	return a.sendLocked(ctx, prompt)
}

// ContinueConversation answers the model's clarifying question.
func (a *OpenAIAnalyzer) ContinueConversation(ctx context.Context, answer string) ConversationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.history) == 0 {
		a.logger.Warn("continuing a conversation that was never started")
		return fallback(answer)
	}
	a.history = append(a.history, openai.UserMessage(answer))
	return a.sendLocked(ctx, answer)
}

func (a *OpenAIAnalyzer) sendLocked(ctx context.Context, fallbackPrompt string) ConversationResult {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: a.history,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oaishared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		a.logger.Error("calling model", err)
		return fallback(fallbackPrompt)
	}
	if len(resp.Choices) == 0 {
		a.logger.Error("model returned no choices", nil)
		return fallback(fallbackPrompt)
	}
	content := resp.Choices[0].Message.Content
	a.history = append(a.history, openai.AssistantMessage(content))
	result := classify(content)
	if result.Type == ResultError {
		a.logger.Warn("unusable model response", zap.String("content", content))
	}
	return result
}

func (a *OpenAIAnalyzer) solutionsContext(ctx context.Context, prompt string) string {
	if a.solutions == nil {
		return ""
	}
	found, err := a.solutions.FindSolutions(ctx, prompt)
	if err != nil {
		a.logger.Warn("looking up past solutions", zap.Error(err))
		return ""
	}
	if len(found) == 0 {
		return ""
	}
	if len(found) > maxContextSolutions {
		found = found[:maxContextSolutions]
	}
	entries := make([]string, 0, len(found))
	for _, s := range found {
		entries = append(entries, fmt.Sprintf("Problem: %q\nSolution: %q", s.ProblemDescription, s.SolutionDescription))
	}
	return "\n\nADDITIONAL CONTEXT: similar problems solved in the past. Use them to inform your diagnosis and suggested fix:\n" +
		strings.Join(entries, "\n---\n")
}

type modelResponse struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Resolution         string   `json:"resolution"`
	Status             string   `json:"status"`
	Priority           string   `json:"priority"`
	ClarifyingQuestion string   `json:"clarifyingQuestion"`
	SuggestedScript    []string `json:"suggestedScript"`
}

// classify turns raw model output into a result. A clarifying question
// wins over any analysis fields.
func classify(content string) ConversationResult {
	var r modelResponse
	if err := sonic.UnmarshalString(strings.TrimSpace(content), &r); err != nil {
		return ConversationResult{Type: ResultError, Message: "Could not understand the response from the AI."}
	}
	if q := strings.TrimSpace(r.ClarifyingQuestion); q != "" {
		return ConversationResult{Type: ResultQuestion, Question: q}
	}
	if r.Title == "" || r.Description == "" || r.Status == "" || r.Priority == "" {
		return ConversationResult{Type: ResultError, Message: "Received an invalid response from the AI."}
	}
	status := remotedesk.TicketStatus(r.Status)
	if !status.Valid() {
		status = remotedesk.TicketStatusNew
	}
	priority := remotedesk.Priority(r.Priority)
	if !priority.Valid() {
		priority = remotedesk.PriorityMedium
	}
	return ConversationResult{
		Type: ResultAnalysis,
		Analysis: &Analysis{
			Title:             r.Title,
			Description:       r.Description,
			Resolution:        r.Resolution,
			Status:            status,
			Priority:          priority,
			SuggestedCommands: r.SuggestedScript,
		},
	}
}

func fallback(prompt string) ConversationResult {
	return ConversationResult{
		Type: ResultAnalysis,
		Analysis: &Analysis{
			Title:       fmt.Sprintf("Issue reported: %q", prompt),
			Description: "An error occurred during AI analysis. A ticket has been created for manual review by IT support.",
			Status:      remotedesk.TicketStatusNew,
			Priority:    remotedesk.PriorityMedium,
		},
	}
}
