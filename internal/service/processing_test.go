package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/source"
)

func videoRefs(n int) []source.VideoRef {
	refs := make([]source.VideoRef, 0, n)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i)) + "-video"
		refs = append(refs, source.VideoRef{
			SourceVideoID: id,
			Title:         "Video " + id,
			URL:           "https://www.youtube.com/watch?v=" + id,
			PublishedAt:   base.AddDate(0, 0, i),
		})
	}
	return refs
}

func mustGetChannel(t *testing.T, env *pipelineEnv, id string) *domain.Channel {
	t.Helper()
	ch, err := env.channels.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	return ch
}

func TestProcessChannelHappyPath(t *testing.T) {
	env := newPipelineEnv(t, 3)
	env.lister.meta = &source.ChannelMeta{
		SourceChannelID: "UCresolved",
		Name:            "Resolved Name",
		ThumbnailURL:    "https://example.com/thumb.jpg",
	}
	env.lister.videos = videoRefs(3)
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		return &ClassificationResult{
			Candidates: []MentionCandidate{
				{Ticker: "AAPL", Sentiment: "buy", Context: "buying apple", Confidence: ptrFloat(0.9)},
			},
		}, nil
	}
	env.backfiller.updated = 3
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}

	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.VideoCount != 3 || got.ProcessedVideoCount != 3 {
		t.Errorf("counters = %d/%d, want 3/3", got.ProcessedVideoCount, got.VideoCount)
	}
	if got.YouTubeChannelID != "UCresolved" || got.Name != "Resolved Name" {
		t.Errorf("metadata not updated: id=%s name=%s", got.YouTubeChannelID, got.Name)
	}
	if got.ThumbnailURL != "https://example.com/thumb.jpg" {
		t.Errorf("thumbnail = %s", got.ThumbnailURL)
	}

	videos, err := env.videos.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("len(videos) = %d, want 3", len(videos))
	}
	for _, v := range videos {
		if v.AnalysisStatus != domain.AnalysisStatusCompleted {
			t.Errorf("video %s analysis = %s, want completed", v.YouTubeVideoID, v.AnalysisStatus)
		}
		if v.TranscriptStatus != domain.TranscriptStatusFetched {
			t.Errorf("video %s transcript = %s, want fetched", v.YouTubeVideoID, v.TranscriptStatus)
		}
	}

	mentions, err := env.mentions.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("list mentions: %v", err)
	}
	if len(mentions) != 3 {
		t.Errorf("len(mentions) = %d, want 3", len(mentions))
	}
	for _, m := range mentions {
		if m.Ticker != "AAPL" || m.Sentiment != domain.SentimentBuy {
			t.Errorf("mention = %s/%s", m.Ticker, m.Sentiment)
		}
		if m.PriceAtMention != nil {
			t.Errorf("price at mention should start nil, got %v", *m.PriceAtMention)
		}
	}

	if _, err := env.stocks.GetByTicker(context.Background(), "AAPL"); err != nil {
		t.Errorf("stock stub not created: %v", err)
	}
	if env.backfiller.backfillCount() != 1 {
		t.Errorf("backfill invoked %d times, want 1", env.backfiller.backfillCount())
	}
}

func TestProcessChannelRerunIsIdempotent(t *testing.T) {
	env := newPipelineEnv(t, 2)
	env.lister.videos = videoRefs(3)
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		return &ClassificationResult{
			Candidates: []MentionCandidate{{Ticker: "MSFT", Sentiment: "hold"}},
		}, nil
	}
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCalls := env.classifier.callCount()

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if env.classifier.callCount() != firstCalls {
		t.Errorf("classifier re-invoked on re-run: %d -> %d", firstCalls, env.classifier.callCount())
	}
	count, err := env.videos.CountByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("count videos: %v", err)
	}
	if count != 3 {
		t.Errorf("video count after re-run = %d, want 3", count)
	}

	// Pre-filtered videos still count toward progress.
	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ProcessedVideoCount != 3 || got.VideoCount != 3 {
		t.Errorf("counters = %d/%d, want 3/3", got.ProcessedVideoCount, got.VideoCount)
	}
}

func TestProcessChannelNoVideos(t *testing.T) {
	env := newPipelineEnv(t, 2)
	env.lister.videos = nil
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.VideoCount != 0 || got.ProcessedVideoCount != 0 {
		t.Errorf("counters = %d/%d, want 0/0", got.ProcessedVideoCount, got.VideoCount)
	}
	if env.classifier.callCount() != 0 {
		t.Errorf("classifier called %d times for empty channel", env.classifier.callCount())
	}
}

func TestProcessChannelDiscoveryFailure(t *testing.T) {
	env := newPipelineEnv(t, 2)
	env.lister.listErr = errors.New("quota exceeded")
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	logs, err := env.logs.ListByChannel(context.Background(), ch.ID, time.Time{}, 100)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Level == domain.LogLevelWarning && strings.Contains(entry.Message, "discovery failed") {
			found = true
		}
	}
	if !found {
		t.Error("no warning log for failed discovery")
	}
}

func TestProcessChannelClassifierFailureContained(t *testing.T) {
	env := newPipelineEnv(t, 1)
	env.lister.videos = videoRefs(2)
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		if call == 1 {
			return nil, errors.New("model overloaded")
		}
		return &ClassificationResult{
			Candidates: []MentionCandidate{{Ticker: "NVDA", Sentiment: "buy"}},
		}, nil
	}
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.ProcessedVideoCount != 2 {
		t.Errorf("processed = %d, want 2", got.ProcessedVideoCount)
	}

	videos, err := env.videos.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	var failed, completed int
	for _, v := range videos {
		switch v.AnalysisStatus {
		case domain.AnalysisStatusFailed:
			failed++
		case domain.AnalysisStatusCompleted:
			completed++
		}
	}
	if failed != 1 || completed != 1 {
		t.Errorf("analysis statuses = %d failed / %d completed, want 1/1", failed, completed)
	}
}

func TestProcessChannelTranscriptFailureContained(t *testing.T) {
	env := newPipelineEnv(t, 1)
	refs := videoRefs(2)
	env.lister.videos = refs
	env.transcripts.failFor = map[string]error{
		refs[0].SourceVideoID: errors.New("no captions"),
	}
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		return &ClassificationResult{}, nil
	}
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	if env.classifier.callCount() != 1 {
		t.Errorf("classifier called %d times, want 1 (transcript failure skips analysis)", env.classifier.callCount())
	}

	videos, err := env.videos.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("len(videos) = %d, want 2", len(videos))
	}
	for _, v := range videos {
		if v.YouTubeVideoID == refs[0].SourceVideoID {
			if v.TranscriptStatus != domain.TranscriptStatusFailed {
				t.Errorf("transcript status = %s, want failed", v.TranscriptStatus)
			}
			if v.AnalysisStatus != domain.AnalysisStatusFailed {
				t.Errorf("analysis status = %s, want failed", v.AnalysisStatus)
			}
		}
	}
}

func TestProcessChannelDuplicateTickersDeduped(t *testing.T) {
	env := newPipelineEnv(t, 1)
	env.lister.videos = videoRefs(1)
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		return &ClassificationResult{
			Candidates: []MentionCandidate{
				{Ticker: "TSLA", Sentiment: "buy"},
				{Ticker: "TSLA", Sentiment: "sell"},
				{Ticker: "", Sentiment: "buy"},
				{Ticker: "TOOLONG", Sentiment: "buy"},
			},
		}, nil
	}
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	mentions, err := env.mentions.ListByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("list mentions: %v", err)
	}
	if len(mentions) != 1 {
		t.Fatalf("len(mentions) = %d, want 1", len(mentions))
	}
	if mentions[0].Ticker != "TSLA" || mentions[0].Sentiment != domain.SentimentBuy {
		t.Errorf("kept mention = %s/%s, want first TSLA/buy", mentions[0].Ticker, mentions[0].Sentiment)
	}
}

func TestProcessChannelCancellation(t *testing.T) {
	env := newPipelineEnv(t, 1)
	env.lister.videos = videoRefs(5)
	ch := env.createChannel(t)

	env.classifier.onCall = func(call int) {
		if call == 1 {
			if err := env.svc.CancelChannel(context.Background(), ch.ID); err != nil {
				t.Errorf("CancelChannel: %v", err)
			}
		}
	}
	env.classifier.fn = func(call int, transcript string) (*ClassificationResult, error) {
		return &ClassificationResult{}, nil
	}

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}

	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.ProcessedVideoCount >= 5 {
		t.Errorf("processed = %d, want fewer than 5", got.ProcessedVideoCount)
	}
	if got.ProcessedVideoCount > got.VideoCount {
		t.Errorf("processed %d exceeds total %d", got.ProcessedVideoCount, got.VideoCount)
	}

	// At most one in-flight task may complete after the cancel lands.
	count, err := env.videos.CountByChannel(context.Background(), ch.ID)
	if err != nil {
		t.Fatalf("count videos: %v", err)
	}
	if count < 1 || count > 2 {
		t.Errorf("videos persisted = %d, want 1 or 2", count)
	}
	if env.backfiller.backfillCount() != 0 {
		t.Errorf("backfill ran on cancelled channel")
	}
}

func TestProcessChannelNotFound(t *testing.T) {
	env := newPipelineEnv(t, 1)
	err := env.svc.ProcessChannel(context.Background(), "no-such-channel")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestProcessChannelBackfillFailureNonFatal(t *testing.T) {
	env := newPipelineEnv(t, 1)
	env.lister.videos = videoRefs(1)
	env.backfiller.err = errors.New("providers down")
	ch := env.createChannel(t)

	if err := env.svc.ProcessChannel(context.Background(), ch.ID); err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}
	got := mustGetChannel(t, env, ch.ID)
	if got.Status != domain.ChannelStatusCompleted {
		t.Errorf("status = %s, want completed despite backfill failure", got.Status)
	}
}

func TestCancelChannelStates(t *testing.T) {
	env := newPipelineEnv(t, 1)
	ch := env.createChannel(t)

	tests := []struct {
		name    string
		status  domain.ChannelStatus
		wantErr error
	}{
		{"pending", domain.ChannelStatusPending, domain.ErrInvalidState},
		{"completed", domain.ChannelStatusCompleted, domain.ErrInvalidState},
		{"cancelled", domain.ChannelStatusCancelled, domain.ErrInvalidState},
		{"processing", domain.ChannelStatusProcessing, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.channels.UpdateStatus(context.Background(), ch.ID, tt.status); err != nil {
				t.Fatalf("set status: %v", err)
			}
			err := env.svc.CancelChannel(context.Background(), ch.ID)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("CancelChannel: %v", err)
				}
				got := mustGetChannel(t, env, ch.ID)
				if got.Status != domain.ChannelStatusCancelled {
					t.Errorf("status = %s, want cancelled", got.Status)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCancelChannelNotFound(t *testing.T) {
	env := newPipelineEnv(t, 1)
	err := env.svc.CancelChannel(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a very long title that keeps going", 10, "a very lon..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
