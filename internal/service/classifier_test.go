package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	body := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func TestClassifyExtractsCandidates(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		chatReply(t, w, `{"stocks": [
			{"ticker": "aapl", "sentiment": "BUY", "context": "load up on apple", "confidence": 0.92},
			{"ticker": "MSFT", "sentiment": "uncertain", "context": "microsoft came up"}
		]}`)
	}))
	defer srv.Close()

	c := NewLLMClassifier(&ClassifierConfig{APIKey: "test-key", BaseURL: srv.URL})
	transcript := strings.Repeat("today we talk about stocks ", 10)

	result, err := c.Classify(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(result.Candidates))
	}
	if result.Candidates[0].Ticker != "AAPL" || result.Candidates[0].Sentiment != "buy" {
		t.Errorf("candidate 0 = %+v", result.Candidates[0])
	}
	if result.Candidates[0].Confidence == nil || *result.Candidates[0].Confidence != 0.92 {
		t.Errorf("confidence = %v", result.Candidates[0].Confidence)
	}
	if result.Candidates[1].Sentiment != "mentioned" {
		t.Errorf("unknown sentiment mapped to %s, want mentioned", result.Candidates[1].Sentiment)
	}
	if len(result.Raw) == 0 {
		t.Error("raw payload not preserved")
	}

	if gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %s", gotReq.ResponseFormat.Type)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %s, want default", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestClassifyShortTranscriptSkipsAPI(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		chatReply(t, w, `{"stocks": []}`)
	}))
	defer srv.Close()

	c := NewLLMClassifier(&ClassifierConfig{APIKey: "k", BaseURL: srv.URL})
	result, err := c.Classify(context.Background(), "  hi  ")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if called {
		t.Error("API called for a sub-50-char transcript")
	}
	if len(result.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", result.Candidates)
	}
}

func TestClassifyLongTranscriptTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		user := req.Messages[1].Content
		if len(user) > maxTranscriptChars+100 {
			t.Errorf("user message length = %d, transcript not truncated", len(user))
		}
		if !strings.HasSuffix(user, "...") {
			t.Error("truncated transcript missing ellipsis")
		}
		chatReply(t, w, `{"stocks": []}`)
	}))
	defer srv.Close()

	c := NewLLMClassifier(&ClassifierConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Classify(context.Background(), strings.Repeat("x", maxTranscriptChars+500)); err != nil {
		t.Fatalf("Classify: %v", err)
	}
}

func TestClassifyAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte(`{"error": {"message": "rate limit", "type": "rate_limit_error"}}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}))
	defer srv.Close()

	c := NewLLMClassifier(&ClassifierConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Classify(context.Background(), strings.Repeat("stocks ", 20))
	if err == nil {
		t.Fatal("Classify accepted a 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status in message", err)
	}
}

func TestClassifyMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "this is not json")
	}))
	defer srv.Close()

	c := NewLLMClassifier(&ClassifierConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Classify(context.Background(), strings.Repeat("stocks ", 20)); err == nil {
		t.Fatal("Classify accepted malformed model output")
	}
}

func TestValidateCandidates(t *testing.T) {
	long := strings.Repeat("c", 300)
	raw := []MentionCandidate{
		{Ticker: " nvda ", Sentiment: "Sell", Context: "dump it"},
		{Ticker: "", Sentiment: "buy"},
		{Ticker: "TOOLONG", Sentiment: "buy"},
		{Ticker: "AMD", Sentiment: "", Context: long},
	}
	valid := validateCandidates(raw)
	if len(valid) != 2 {
		t.Fatalf("len(valid) = %d, want 2", len(valid))
	}
	if valid[0].Ticker != "NVDA" || valid[0].Sentiment != "sell" {
		t.Errorf("candidate 0 = %+v", valid[0])
	}
	if valid[1].Sentiment != "mentioned" {
		t.Errorf("empty sentiment mapped to %s", valid[1].Sentiment)
	}
	if len(valid[1].Context) != 200 {
		t.Errorf("context length = %d, want capped 200", len(valid[1].Context))
	}
}
