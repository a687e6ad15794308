package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/provider"
	"github.com/wjiang/picktrace/internal/repository"
	"github.com/wjiang/picktrace/internal/source"
	"github.com/wjiang/picktrace/internal/storage"
)

const defaultWorkers = 10

// PriceBackfiller is the slice of the price layer the pipeline needs: the
// end-of-run historical backfill and instrument info lookups for lazy stock
// stubs.
type PriceBackfiller interface {
	BackfillHistorical(ctx context.Context, channelID string) (int, error)
	StockInfo(ctx context.Context, ticker string) (*provider.StockInfo, error)
}

// ProcessingService orchestrates the channel processing pipeline: video
// discovery, concurrent classification, and the historical price backfill.
type ProcessingService struct {
	channelRepo *repository.ChannelRepository
	videoRepo   *repository.VideoRepository
	mentionRepo *repository.MentionRepository
	stockRepo   *repository.StockRepository
	logRepo     *repository.LogRepository
	lister      source.Lister
	transcripts source.TranscriptFetcher
	classifier  Classifier
	prices      PriceBackfiller
	archiver    storage.Archiver
	logger      *logger.Logger
	workers     int
}

// ProcessingConfig holds configuration for the processing pipeline.
type ProcessingConfig struct {
	Workers int
}

// NewProcessingService creates a new processing service.
func NewProcessingService(
	channelRepo *repository.ChannelRepository,
	videoRepo *repository.VideoRepository,
	mentionRepo *repository.MentionRepository,
	stockRepo *repository.StockRepository,
	logRepo *repository.LogRepository,
	lister source.Lister,
	transcripts source.TranscriptFetcher,
	classifier Classifier,
	prices PriceBackfiller,
	archiver storage.Archiver,
	log *logger.Logger,
	cfg *ProcessingConfig,
) *ProcessingService {
	workers := defaultWorkers
	if cfg != nil && cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &ProcessingService{
		channelRepo: channelRepo,
		videoRepo:   videoRepo,
		mentionRepo: mentionRepo,
		stockRepo:   stockRepo,
		logRepo:     logRepo,
		lister:      lister,
		transcripts: transcripts,
		classifier:  classifier,
		prices:      prices,
		archiver:    archiver,
		logger:      log,
		workers:     workers,
	}
}

// log returns a logger from context if available, otherwise the service's.
func (s *ProcessingService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

type taskStatus int

const (
	taskSkipped taskStatus = iota
	taskFailed
	taskCompleted
)

type taskResult struct {
	videoID  string
	status   taskStatus
	mentions int
}

// ProcessChannel runs the full pipeline for one channel. Unexpected
// failures mark the channel failed before the error is returned; per-video
// failures are contained and only degrade the result set.
func (s *ProcessingService) ProcessChannel(ctx context.Context, channelID string) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
		}
		return err
	}

	if err := s.run(ctx, ch); err != nil {
		s.appendLog(ctx, channelID, domain.LogLevelError, fmt.Sprintf("Processing failed: %v", err))
		if uerr := s.channelRepo.UpdateStatus(ctx, channelID, domain.ChannelStatusFailed); uerr != nil {
			s.log(ctx).WithField(logger.FieldChannelID, channelID).
				WithError(uerr).Error("Failed to mark channel failed")
		}
		return err
	}
	return nil
}

func (s *ProcessingService) run(ctx context.Context, ch *domain.Channel) error {
	channelID := ch.ID

	if err := s.channelRepo.UpdateStatus(ctx, channelID, domain.ChannelStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark channel processing: %w", err)
	}
	s.appendLog(ctx, channelID, domain.LogLevelInfo, "Starting channel processing")

	// Metadata resolution and discovery are best-effort: a failure leaves
	// the channel with whatever data it already has.
	sourceChannelID := ch.YouTubeChannelID
	if meta, err := s.lister.ResolveChannel(ctx, ch.URL); err != nil {
		s.appendLog(ctx, channelID, domain.LogLevelWarning,
			fmt.Sprintf("Could not resolve channel metadata: %v", err))
	} else {
		sourceChannelID = meta.SourceChannelID
		fields := map[string]interface{}{
			"youtube_channel_id": meta.SourceChannelID,
			"name":               meta.Name,
		}
		if meta.ThumbnailURL != "" {
			fields["thumbnail_url"] = meta.ThumbnailURL
		}
		if err := s.channelRepo.UpdateFields(ctx, channelID, fields); err != nil {
			s.log(ctx).WithField(logger.FieldChannelID, channelID).
				WithError(err).Warn("Failed to update channel metadata")
		}
	}

	refs, err := s.lister.ListVideos(ctx, sourceChannelID, ch.TimeRangeMonths)
	if err != nil {
		s.appendLog(ctx, channelID, domain.LogLevelWarning,
			fmt.Sprintf("Video discovery failed: %v", err))
		refs = nil
	}

	if len(refs) == 0 {
		s.appendLog(ctx, channelID, domain.LogLevelInfo, "No videos found, nothing to process")
		return s.channelRepo.UpdateFields(ctx, channelID, map[string]interface{}{
			"video_count":           0,
			"processed_video_count": 0,
			"status":                domain.ChannelStatusCompleted,
		})
	}

	s.appendLog(ctx, channelID, domain.LogLevelInfo,
		fmt.Sprintf("Found %d videos to analyze", len(refs)))

	// Pre-filter already-ingested videos. They count toward progress so a
	// re-run of a finished channel still reaches 100%.
	toProcess := make([]source.VideoRef, 0, len(refs))
	for _, ref := range refs {
		exists, err := s.videoRepo.ExistsByYouTubeVideoID(ctx, ref.SourceVideoID)
		if err != nil {
			return fmt.Errorf("failed to check video existence: %w", err)
		}
		if !exists {
			toProcess = append(toProcess, ref)
		}
	}
	processed := len(refs) - len(toProcess)
	if processed > 0 {
		s.appendLog(ctx, channelID, domain.LogLevelInfo,
			fmt.Sprintf("Skipping %d already processed videos", processed))
	}

	if err := s.channelRepo.UpdateFields(ctx, channelID, map[string]interface{}{
		"video_count":           len(refs),
		"processed_video_count": processed,
	}); err != nil {
		return fmt.Errorf("failed to update channel counters: %w", err)
	}

	totalMentions := 0
	if len(toProcess) > 0 {
		cancelled, mentions, err := s.runPool(ctx, ch, toProcess, processed)
		if err != nil {
			return err
		}
		totalMentions = mentions
		if cancelled {
			s.appendLog(ctx, channelID, domain.LogLevelInfo, "Processing cancelled")
			return nil
		}
	}

	// A cancel may land between the last drain and here.
	status, err := s.channelRepo.GetStatus(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to re-read channel status: %w", err)
	}
	if status == domain.ChannelStatusCancelled {
		s.appendLog(ctx, channelID, domain.LogLevelInfo, "Processing cancelled")
		return nil
	}

	if err := s.channelRepo.UpdateStatus(ctx, channelID, domain.ChannelStatusCompleted); err != nil {
		return fmt.Errorf("failed to mark channel completed: %w", err)
	}
	s.appendLog(ctx, channelID, domain.LogLevelInfo,
		fmt.Sprintf("Processing complete: %d videos, %d stock mentions", len(refs), totalMentions))

	// Tail step: historical prices for the new mentions. Never fails the run.
	if updated, err := s.prices.BackfillHistorical(ctx, channelID); err != nil {
		s.appendLog(ctx, channelID, domain.LogLevelWarning,
			fmt.Sprintf("Historical price backfill failed: %v", err))
	} else {
		s.appendLog(ctx, channelID, domain.LogLevelInfo,
			fmt.Sprintf("Historical price backfill complete: %d prices", updated))
	}
	return nil
}

// runPool fans toProcess out to the worker pool and drains results,
// persisting progress and polling for cancellation after every drain. The
// results channel is buffered to the full task count so abandoning the
// drain loop never blocks an in-flight worker.
func (s *ProcessingService) runPool(ctx context.Context, ch *domain.Channel, toProcess []source.VideoRef, processed int) (cancelled bool, mentions int, err error) {
	tasks := make(chan source.VideoRef)
	results := make(chan taskResult, len(toProcess))
	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer close(tasks)
		for _, ref := range toProcess {
			select {
			case tasks <- ref:
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range tasks {
				results <- s.processVideo(ctx, ch, ref)
			}
		}()
	}

	for drained := 0; drained < len(toProcess); drained++ {
		res := <-results
		if res.status == taskCompleted {
			mentions += res.mentions
		}

		processed++
		if uerr := s.channelRepo.UpdateFields(ctx, ch.ID, map[string]interface{}{
			"processed_video_count": processed,
		}); uerr != nil {
			s.log(ctx).WithField(logger.FieldChannelID, ch.ID).
				WithError(uerr).Warn("Failed to persist progress")
		}

		status, serr := s.channelRepo.GetStatus(ctx, ch.ID)
		if serr != nil {
			halt()
			return false, mentions, fmt.Errorf("failed to poll channel status: %w", serr)
		}
		if status == domain.ChannelStatusCancelled {
			// Cooperative stop: no new tasks start, in-flight tasks are
			// allowed to finish and their writes stand.
			halt()
			return true, mentions, nil
		}
	}

	halt()
	wg.Wait()
	return false, mentions, nil
}

// processVideo handles one video end to end. Classification failures are
// contained: the video is marked failed and the pool moves on.
func (s *ProcessingService) processVideo(ctx context.Context, ch *domain.Channel, ref source.VideoRef) taskResult {
	s.appendLog(ctx, ch.ID, domain.LogLevelInfo,
		fmt.Sprintf("Processing: %q", truncate(ref.Title, 50)))

	// Second idempotency check: the pre-filter and this check are not
	// atomic across concurrent runs of the same channel.
	exists, err := s.videoRepo.ExistsByYouTubeVideoID(ctx, ref.SourceVideoID)
	if err == nil && exists {
		s.appendLog(ctx, ch.ID, domain.LogLevelInfo,
			fmt.Sprintf("Video already processed, skipping: %s", truncate(ref.Title, 30)))
		return taskResult{status: taskSkipped}
	}

	video := &domain.Video{
		ID:               uuid.New().String(),
		ChannelID:        ch.ID,
		YouTubeVideoID:   ref.SourceVideoID,
		Title:            ref.Title,
		URL:              ref.URL,
		PublishedAt:      ref.PublishedAt,
		TranscriptStatus: domain.TranscriptStatusFetched,
		AnalysisStatus:   domain.AnalysisStatusPending,
	}

	transcript, terr := s.transcripts.Transcript(ctx, ref.SourceVideoID)
	if terr != nil {
		video.TranscriptStatus = domain.TranscriptStatusFailed
	}

	if err := s.videoRepo.Create(ctx, video); err != nil {
		s.appendLog(ctx, ch.ID, domain.LogLevelWarning,
			fmt.Sprintf("Failed to save video '%s': %v", truncate(ref.Title, 30), err))
		return taskResult{videoID: video.ID, status: taskFailed}
	}

	if terr != nil {
		if uerr := s.videoRepo.UpdateAnalysisStatus(ctx, video.ID, domain.AnalysisStatusFailed); uerr != nil {
			s.log(ctx).WithField(logger.FieldVideoID, video.ID).
				WithError(uerr).Warn("Failed to update analysis status")
		}
		s.appendLog(ctx, ch.ID, domain.LogLevelWarning,
			fmt.Sprintf("No transcript for '%s': %v", truncate(ref.Title, 30), terr))
		return taskResult{videoID: video.ID, status: taskFailed}
	}

	result, cerr := s.classifier.Classify(ctx, transcript)
	if cerr != nil {
		if uerr := s.videoRepo.UpdateAnalysisStatus(ctx, video.ID, domain.AnalysisStatusFailed); uerr != nil {
			s.log(ctx).WithField(logger.FieldVideoID, video.ID).
				WithError(uerr).Warn("Failed to update analysis status")
		}
		s.appendLog(ctx, ch.ID, domain.LogLevelWarning,
			fmt.Sprintf("Analysis failed for '%s': %v", truncate(ref.Title, 30), cerr))
		return taskResult{videoID: video.ID, status: taskFailed}
	}

	if uerr := s.videoRepo.UpdateAnalysisStatus(ctx, video.ID, domain.AnalysisStatusCompleted); uerr != nil {
		s.log(ctx).WithField(logger.FieldVideoID, video.ID).
			WithError(uerr).Warn("Failed to update analysis status")
	}

	count := s.saveMentions(ctx, ch.ID, video, result.Candidates)

	if len(result.Raw) > 0 {
		if aerr := s.archiver.ArchiveClassification(ctx, ch.ID, video.ID, result.Raw); aerr != nil {
			s.log(ctx).WithField(logger.FieldVideoID, video.ID).
				WithError(aerr).Warn("Failed to archive classification")
		}
	}

	if count == 0 {
		s.appendLog(ctx, ch.ID, domain.LogLevelInfo,
			fmt.Sprintf("No stock mentions found in: %s", truncate(ref.Title, 40)))
	} else {
		s.appendLog(ctx, ch.ID, domain.LogLevelInfo,
			fmt.Sprintf("Found %d stock mentions in: %s", count, truncate(ref.Title, 40)))
	}
	return taskResult{videoID: video.ID, status: taskCompleted, mentions: count}
}

// saveMentions persists the validated candidates, lazily creating stock
// stubs. The instrument info lookup is best-effort; a provider failure
// degrades to a minimal NYSE stub.
func (s *ProcessingService) saveMentions(ctx context.Context, channelID string, video *domain.Video, candidates []MentionCandidate) int {
	count := 0
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		if cand.Ticker == "" || len(cand.Ticker) > 5 || seen[cand.Ticker] {
			continue
		}
		seen[cand.Ticker] = true

		if err := s.ensureStock(ctx, cand.Ticker); err != nil {
			s.log(ctx).WithField(logger.FieldTicker, cand.Ticker).
				WithError(err).Warn("Failed to ensure stock record")
			continue
		}

		mention := &domain.StockMention{
			ID:              uuid.New().String(),
			VideoID:         video.ID,
			Ticker:          cand.Ticker,
			Sentiment:       domain.Sentiment(cand.Sentiment),
			ConfidenceScore: cand.Confidence,
			ContextSnippet:  cand.Context,
			PublishedAt:     video.PublishedAt,
		}
		if err := s.mentionRepo.Create(ctx, mention); err != nil {
			s.log(ctx).WithField(logger.FieldTicker, cand.Ticker).
				WithError(err).Warn("Failed to save mention")
			continue
		}
		count++
	}
	return count
}

func (s *ProcessingService) ensureStock(ctx context.Context, ticker string) error {
	_, err := s.stockRepo.GetByTicker(ctx, ticker)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	stock := &domain.Stock{Ticker: ticker, Name: ticker, Exchange: "NYSE"}
	if info, ierr := s.prices.StockInfo(ctx, ticker); ierr == nil && info != nil {
		if info.Name != "" {
			stock.Name = info.Name
		}
		if info.Exchange != "" {
			stock.Exchange = info.Exchange
		}
	}
	return s.stockRepo.EnsureExists(ctx, stock)
}

// CancelChannel requests cooperative cancellation of a running channel.
// Only a channel currently processing can be cancelled.
func (s *ProcessingService) CancelChannel(ctx context.Context, channelID string) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
		}
		return err
	}
	if ch.Status != domain.ChannelStatusProcessing {
		return fmt.Errorf("cannot cancel channel in status %s: %w", ch.Status, domain.ErrInvalidState)
	}
	if err := s.channelRepo.UpdateStatus(ctx, channelID, domain.ChannelStatusCancelled); err != nil {
		return err
	}
	s.appendLog(ctx, channelID, domain.LogLevelInfo, "Cancellation requested")
	return nil
}

func (s *ProcessingService) appendLog(ctx context.Context, channelID string, level domain.LogLevel, message string) {
	if err := s.logRepo.Append(ctx, channelID, level, message); err != nil {
		s.log(ctx).WithField(logger.FieldChannelID, channelID).
			WithError(err).Warn("Failed to append processing log")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
