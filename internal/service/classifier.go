package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/prompts"
)

// MentionCandidate is one stock extracted from a transcript before
// persistence-level validation.
type MentionCandidate struct {
	Ticker     string   `json:"ticker"`
	Sentiment  string   `json:"sentiment"`
	Context    string   `json:"context"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ClassificationResult carries the validated candidates plus the raw model
// payload for archival.
type ClassificationResult struct {
	Candidates []MentionCandidate
	Raw        []byte
}

// Classifier extracts stock mentions from a video transcript.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (*ClassificationResult, error)
}

// maxTranscriptChars bounds the prompt size for very long videos.
const maxTranscriptChars = 15000

// ClassifierConfig holds configuration for the LLM classifier.
type ClassifierConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LLMClassifier extracts stock mentions using an OpenAI-compatible chat
// completion API.
type LLMClassifier struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewLLMClassifier creates a classifier backed by an OpenAI-compatible
// endpoint.
func NewLLMClassifier(cfg *ClassifierConfig) *LLMClassifier {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &LLMClassifier{
		client:   client,
		model:    model,
		endpoint: baseURL + "/chat/completions",
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat chatFormat    `json:"response_format"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type stocksPayload struct {
	Stocks []MentionCandidate `json:"stocks"`
}

// Classify sends the transcript to the model and returns validated stock
// candidates. Transcripts shorter than 50 characters yield an empty result
// without an API call.
func (c *LLMClassifier) Classify(ctx context.Context, transcript string) (*ClassificationResult, error) {
	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) < 50 {
		return &ClassificationResult{Raw: []byte(`{"stocks": []}`)}, nil
	}
	if len(trimmed) > maxTranscriptChars {
		trimmed = trimmed[:maxTranscriptChars] + "..."
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.ClassifierSystemPrompt},
			{Role: "user", Content: prompts.ClassifierUserPrompt + trimmed},
		},
		ResponseFormat: chatFormat{Type: "json_object"},
		Temperature:    0.1,
		MaxTokens:      1000,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier API: %w", err)
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, fmt.Errorf("classifier API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("classifier API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from classifier API (status: %d)", httpResp.StatusCode())
	}

	content := resp.Choices[0].Message.Content
	var payload stocksPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("classifier returned malformed JSON: %w", err)
	}

	return &ClassificationResult{
		Candidates: validateCandidates(payload.Stocks),
		Raw:        []byte(content),
	}, nil
}

// validateCandidates normalizes tickers and sentiments, dropping entries
// with empty or oversized tickers. Unknown sentiments become "mentioned".
func validateCandidates(raw []MentionCandidate) []MentionCandidate {
	valid := make([]MentionCandidate, 0, len(raw))
	for _, cand := range raw {
		ticker := strings.ToUpper(strings.TrimSpace(cand.Ticker))
		if ticker == "" || len(ticker) > 5 {
			continue
		}
		sentiment := strings.ToLower(strings.TrimSpace(cand.Sentiment))
		if !domain.ValidSentiment(domain.Sentiment(sentiment)) {
			sentiment = string(domain.SentimentMentioned)
		}
		sn := cand.Context
		if len(sn) > 200 {
			sn = sn[:200]
		}
		valid = append(valid, MentionCandidate{
			Ticker:     ticker,
			Sentiment:  sentiment,
			Context:    sn,
			Confidence: cand.Confidence,
		})
	}
	return valid
}
