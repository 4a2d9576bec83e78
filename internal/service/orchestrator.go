package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"videocorpus/internal/core/domain"
	"videocorpus/internal/core/ports"
	"videocorpus/internal/logger"
)

// Failure log names.
const (
	FailedQueriesLog    = "failed_queries"
	FailedDownloadsLog  = "failed_downloads"
	FailedProcessingLog = "failed_processing"
)

// Options controls a collection run.
type Options struct {
	MaxResultsPerQuery int
	TargetTotalVideos  int
	Download           bool
	Resolution         string
}

// Orchestrator coordinates the search, download and processing workflow.
type Orchestrator struct {
	searcher  ports.Searcher
	store     ports.MetadataStore
	downloads *DownloadManager
	frames    *FrameProcessor
	opts      Options
	logger    *logger.Logger
}

// NewOrchestrator creates a new Orchestrator. downloads and frames may be nil
// when opts.Download is false.
func NewOrchestrator(
	searcher ports.Searcher,
	store ports.MetadataStore,
	downloads *DownloadManager,
	frames *FrameProcessor,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		searcher:  searcher,
		store:     store,
		downloads: downloads,
		frames:    frames,
		opts:      opts,
		logger:    log,
	}
}

// Run executes a complete collection run over queries. Per-query and per-video
// errors are recorded and skipped; only storage failures abort the run.
func (o *Orchestrator) Run(ctx context.Context, queries []string) (*domain.RunResult, error) {
	runID := uuid.New().String()
	log := o.logger.With("run_id", runID)
	result := &domain.RunResult{RunID: runID, StartedAt: time.Now().UTC()}

	log.LogInfof("[RUN %s] Starting with %d queries, target %d videos", runID, len(queries), o.opts.TargetTotalVideos)

	if err := o.store.Init(ctx); err != nil {
		log.LogError("failed to prepare output directories", err)
		return result, err
	}

	seen, err := o.store.LoadKnownIDs(ctx)
	if err != nil {
		log.LogError("failed to load known video ids", err)
		return result, err
	}
	state := domain.NewRunState(seen)

	// The tracking lists are flushed even after cancellation.
	flushCtx := context.WithoutCancel(ctx)

	result.Records = o.collect(ctx, queries, state, log)
	log.LogInfof("[RUN %s] Collected %d new videos", runID, len(result.Records))

	if result.MetadataPath, err = o.store.SaveMetadata(flushCtx, result.Records); err != nil {
		log.LogError("failed to save metadata", err)
		return result, fmt.Errorf("save metadata: %w", err)
	}
	result.FailedQueriesPath = o.saveFailures(flushCtx, FailedQueriesLog, state.FailedQueries, log)

	if o.opts.Download && o.downloads != nil {
		result.Downloaded = o.downloadAll(ctx, result.Records, state, log)
	}

	result.FailedDownloadsPath = o.saveFailures(flushCtx, FailedDownloadsLog, state.FailedDownloads, log)
	result.FailedProcessingPath = o.saveFailures(flushCtx, FailedProcessingLog, state.FailedProcessing, log)

	result.Processed = state.Processed
	result.FailedQueryCount = len(state.FailedQueries)
	result.FailedDownloadCount = len(state.FailedDownloads)
	result.FailedProcessingCount = len(state.FailedProcessing)
	result.CompletedAt = time.Now().UTC()

	log.Success().
		Int("records", len(result.Records)).
		Int("downloaded", result.Downloaded).
		Int("processed", len(result.Processed)).
		Int("failed_queries", result.FailedQueryCount).
		Int("failed_downloads", result.FailedDownloadCount).
		Int("failed_processing", result.FailedProcessingCount).
		Dur("took", result.CompletedAt.Sub(result.StartedAt)).
		Msgf("[RUN %s] Completed", runID)

	return result, nil
}

// collect runs the queries in order until the target is met. The target is
// checked between queries, so the last query may overshoot it.
func (o *Orchestrator) collect(ctx context.Context, queries []string, state *domain.RunState, log *logger.Logger) []domain.VideoRecord {
	var records []domain.VideoRecord
	tried := domain.NewIDSet()

	for i, query := range queries {
		if len(records) >= o.opts.TargetTotalVideos {
			log.LogInfof("Target of %d videos reached, skipping remaining %d queries", o.opts.TargetTotalVideos, len(queries)-i)
			break
		}
		if ctx.Err() != nil {
			log.LogWarnf("Run cancelled before query %q", query)
			break
		}

		log.LogInfof("[%d/%d] Searching %q", i+1, len(queries), query)
		items, err := o.searcher.Search(ctx, query, o.opts.MaxResultsPerQuery)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			state.RecordQueryFailure(query, err)
			log.Error().Err(err).Str("query", query).Int("partial_items", len(items)).Msg("search failed")
		}

		added := 0
		for _, item := range items {
			if state.Seen.Has(item.VideoID) || tried.Has(item.VideoID) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			tried.Add(item.VideoID)
			details, err := o.searcher.FetchDetails(ctx, item.VideoID)
			if err != nil {
				state.RecordDetailsFailure(item.VideoID, err)
				log.Warn().Err(err).Str("video_id", item.VideoID).Msg("skipping video without details")
				continue
			}
			records = append(records, domain.NewRecord(item, details, query))
			state.Seen.Add(item.VideoID)
			added++
		}
		log.LogInfof("Query %q: %d results, %d new, %d total", query, len(items), added, len(records))
	}

	return records
}

// downloadAll downloads each record and processes every successful download
// right away. It returns the number of successful downloads.
func (o *Orchestrator) downloadAll(ctx context.Context, records []domain.VideoRecord, state *domain.RunState, log *logger.Logger) int {
	downloaded := 0
	for i, rec := range records {
		if ctx.Err() != nil {
			log.LogWarnf("Run cancelled, %d downloads skipped", len(records)-i)
			break
		}

		log.LogInfof("[%d/%d] Downloading %s", i+1, len(records), rec.VideoID)
		res := o.downloads.Download(ctx, rec, o.opts.Resolution, state)
		if !res.OK() {
			continue
		}
		downloaded++

		if o.frames == nil {
			continue
		}
		processed, err := o.frames.Process(ctx, res.Path)
		if err != nil {
			state.RecordProcessingFailure(rec.VideoID, err)
			log.Error().Err(err).Str("video_id", rec.VideoID).Msg("processing failed")
			continue
		}
		processed.VideoID = rec.VideoID
		state.Processed = append(state.Processed, processed)
	}
	return downloaded
}

func (o *Orchestrator) saveFailures(ctx context.Context, name string, failures []domain.Failure, log *logger.Logger) string {
	path, err := o.store.SaveFailures(ctx, name, failures)
	if err != nil {
		log.LogError("failed to save "+name, err)
		return ""
	}
	return path
}
