package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiClient is an implementation of the AdvisoryClient interface using
// Google Gemini
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
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

// NewGeminiClient creates a new Gemini advisory client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are an email triage assistant. Read the following email and assess it.
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

Respond only with the JSON object and nothing else.`,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// AnalyzeEmail asks the model for an advisory read of the message
func (c *GeminiClient) AnalyzeEmail(ctx context.Context, email *core.Email) (*core.AdvisoryResult, error) {
	to := ""
	if len(email.To) > 0 {
		to = email.To[0]
		if len(email.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.To)-1)
		}
	}

	processedBody := c.textProcessor.ProcessText(email.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, email.From, to, email.Subject, processedBody)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	advisory, err := parseAdvisoryResponse(responseText)
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

// parseAdvisoryResponse parses the model output, tolerating prose around
// the JSON object
func parseAdvisoryResponse(responseText string) (*AdvisoryResponse, error) {
	var advisory AdvisoryResponse
	if err := json.Unmarshal([]byte(responseText), &advisory); err != nil {
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
