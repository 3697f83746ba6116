package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the AdvisoryClient interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// AdvisoryResponse represents the structured response from the LLM
type AdvisoryResponse struct {
	Sentiment      string  `json:"sentiment"`
	Urgency        string  `json:"urgency"`
	SuggestedDraft string  `json:"suggested_draft"`
	Confidence     float64 `json:"confidence"`
}

// NewOpenAIClient creates a new OpenAI advisory client
func NewOpenAIClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	client := openai.NewClient(apiKey)

	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat:  advisoryPromptFormat,
	}
}

// AnalyzeEmail asks the model for an advisory read of the message
func (c *OpenAIClient) AnalyzeEmail(ctx context.Context, email *core.Email) (*core.AdvisoryResult, error) {
	processedBody := c.textProcessor.ProcessText(email.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, email.From, recipientSummary(email), email.Subject, processedBody)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email triage assistant. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	responseFormat := openai.ChatCompletionResponseFormat{
		Type: "json",
	}
	req.ResponseFormat = &responseFormat

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	advisory, err := parseAdvisoryResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &core.AdvisoryResult{
		Sentiment:      advisory.Sentiment,
		Urgency:        advisory.Urgency,
		SuggestedDraft: advisory.SuggestedDraft,
		Confidence:     advisory.Confidence,
		AnalyzedAt:     time.Now(),
		ModelUsed:      c.modelName,
	}, nil
}

// advisoryPromptFormat asks for the semantic read the rule-based engine
// cannot derive on its own
const advisoryPromptFormat = `You are an email triage assistant. Read the following email and assess it.
Respond with a JSON object containing:
- sentiment: "negative", "neutral" or "positive" (emotional tone of the sender)
- urgency: "urgent", "soon" or "normal" (how quickly a response is expected)
- suggested_draft: string (a brief draft reply, or empty if none is needed)
- confidence: number between 0 and 1 (how confident you are in your assessment)

Email:
From: %s
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// parseAdvisoryResponse parses the model output, tolerating prose around
// the JSON object
func parseAdvisoryResponse(responseText string) (*AdvisoryResponse, error) {
	var advisory AdvisoryResponse
	if err := json.Unmarshal([]byte(responseText), &advisory); err != nil {
		// Try to extract JSON from the text response
		jsonStart := 0
		jsonEnd := len(responseText)

		for i := 0; i < len(responseText); i++ {
			if responseText[i] == '{' {
				jsonStart = i
				break
			}
		}
		for i := len(responseText) - 1; i >= 0; i-- {
			if responseText[i] == '}' {
				jsonEnd = i + 1
				break
			}
		}

		if jsonStart >= jsonEnd {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &advisory); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}
	return &advisory, nil
}

func recipientSummary(email *core.Email) string {
	to := ""
	if len(email.To) > 0 {
		to = email.To[0]
		if len(email.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.To)-1)
		}
	}
	return to
}
