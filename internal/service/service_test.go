package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/config"
	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/provider"
	"github.com/wjiang/picktrace/internal/repository"
	"github.com/wjiang/picktrace/internal/source"
)

// newTestDB opens a migrated sqlite database in a per-test temp dir.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "picktrace.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return db
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", ServiceName: "test"})
}

// fakeLister is a canned source.Lister.
type fakeLister struct {
	meta    *source.ChannelMeta
	metaErr error
	videos  []source.VideoRef
	listErr error
}

func (f *fakeLister) ResolveChannel(ctx context.Context, channelURL string) (*source.ChannelMeta, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	if f.meta != nil {
		return f.meta, nil
	}
	return &source.ChannelMeta{SourceChannelID: "UCtest", Name: "Test Channel"}, nil
}

func (f *fakeLister) ListVideos(ctx context.Context, sourceChannelID string, monthsBack int) ([]source.VideoRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.videos, nil
}

// fakeTranscripts returns a per-video transcript, or a configured error.
type fakeTranscripts struct {
	failFor map[string]error
}

func (f *fakeTranscripts) Transcript(ctx context.Context, sourceVideoID string) (string, error) {
	if err, ok := f.failFor[sourceVideoID]; ok {
		return "", err
	}
	return "transcript for " + sourceVideoID, nil
}

// fakeClassifier dispatches per call and counts invocations.
type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	fn     func(call int, transcript string) (*ClassificationResult, error)
	onCall func(call int)
}

func (f *fakeClassifier) Classify(ctx context.Context, transcript string) (*ClassificationResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	if f.fn != nil {
		return f.fn(n, transcript)
	}
	return &ClassificationResult{}, nil
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeBackfiller records backfill invocations and serves canned stock info.
type fakeBackfiller struct {
	mu        sync.Mutex
	backfills int
	updated   int
	err       error
	infos     map[string]*provider.StockInfo
}

func (f *fakeBackfiller) BackfillHistorical(ctx context.Context, channelID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills++
	return f.updated, f.err
}

func (f *fakeBackfiller) StockInfo(ctx context.Context, ticker string) (*provider.StockInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.infos[ticker]; ok {
		return info, nil
	}
	return nil, provider.ErrNoData
}

func (f *fakeBackfiller) backfillCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backfills
}

// pipelineEnv bundles a fully wired ProcessingService over fakes.
type pipelineEnv struct {
	db          *gorm.DB
	channels    *repository.ChannelRepository
	videos      *repository.VideoRepository
	mentions    *repository.MentionRepository
	stocks      *repository.StockRepository
	logs        *repository.LogRepository
	lister      *fakeLister
	transcripts *fakeTranscripts
	classifier  *fakeClassifier
	backfiller  *fakeBackfiller
	svc         *ProcessingService
}

func newPipelineEnv(t *testing.T, workers int) *pipelineEnv {
	t.Helper()
	db := newTestDB(t)
	env := &pipelineEnv{
		db:          db,
		channels:    repository.NewChannelRepository(db),
		videos:      repository.NewVideoRepository(db),
		mentions:    repository.NewMentionRepository(db),
		stocks:      repository.NewStockRepository(db),
		logs:        repository.NewLogRepository(db),
		lister:      &fakeLister{},
		transcripts: &fakeTranscripts{},
		classifier:  &fakeClassifier{},
		backfiller:  &fakeBackfiller{},
	}
	env.svc = NewProcessingService(
		env.channels, env.videos, env.mentions, env.stocks, env.logs,
		env.lister, env.transcripts, env.classifier, env.backfiller, nil,
		testLogger(),
		&ProcessingConfig{Workers: workers},
	)
	return env
}

func (env *pipelineEnv) createChannel(t *testing.T) *domain.Channel {
	t.Helper()
	ch := &domain.Channel{
		ID:               uuid.New().String(),
		YouTubeChannelID: "handle-" + uuid.New().String()[:8],
		Name:             "Test Channel",
		URL:              "https://www.youtube.com/@testchannel",
		Status:           domain.ChannelStatusPending,
		TimeRangeMonths:  12,
	}
	if err := env.channels.Create(context.Background(), ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return ch
}

func ptrFloat(v float64) *float64 { return &v }
