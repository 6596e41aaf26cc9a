package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfurukawa/pagemill/internal/backend"
	"github.com/mfurukawa/pagemill/internal/config"
	"github.com/mfurukawa/pagemill/internal/document"
	"github.com/mfurukawa/pagemill/internal/metrics"
	"github.com/mfurukawa/pagemill/internal/outline"
	"github.com/mfurukawa/pagemill/internal/segment"
	"github.com/mfurukawa/pagemill/internal/store"
)

// Orchestrator runs conversion jobs: a buffered queue feeding worker
// goroutines, each processing one document end to end.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	converter *Converter
	backends  map[string]backend.Backend
	store     *store.Store
	log       *slog.Logger
	cfg       config.Config
	segOpts   segment.Options
	splitCfg  outline.SplitConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, converter *Converter, backends map[string]backend.Backend, st *store.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      NewJobStore(cfg.JobTTL),
		queue:     make(chan *Job, cfg.MaxQueueSize),
		converter: converter,
		backends:  backends,
		store:     st,
		log:       log,
		cfg:       cfg,
		segOpts: segment.Options{
			RenderDPI:         cfg.PDFRenderDPI,
			PdftotextFallback: cfg.PDFFallbackPdftotext,
		},
		splitCfg: SplitConfigFrom(cfg),
	}
}

// SplitConfigFrom maps the service chunking configuration onto the
// splitter.
func SplitConfigFrom(cfg config.Config) outline.SplitConfig {
	sc := outline.SplitConfig{
		MaxSize: cfg.ChunkMaxSize,
		Overlap: cfg.ChunkOverlap,
		Mode:    outline.OverlapMode(cfg.OverlapMode),
		Size:    outline.CharCount,
	}
	if cfg.ChunkSizeUnit == "tokens" {
		sc.Size = outline.EstimateTokens
	}
	return sc
}

// Start launches worker goroutines and the job store cleanup ticker.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed)
		job.AddError("job queue is full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// process runs one job through the full pipeline: dedup, segment,
// extract, reassemble, chunk, store.
func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "filename", job.Filename)
	metrics.JobStarted()
	defer metrics.JobFinished()
	defer job.ReleaseFileData()

	data := job.FileData()
	hash := ContentHashHex(data)
	job.SetContentHash(hash)
	docID := hash[:16]

	// Dedup before segmentation: an already-converted upload should
	// cost neither parsing nor backend calls.
	if !job.Force() {
		existing, ok, err := o.store.ByHash(ctx, hash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if ok {
			log.Info("duplicate document, skipping", "existing_doc_id", existing)
			job.SetDoc(existing)
			job.SetStatus(StatusDupSkipped)
			return
		}
	}

	be, ok := o.backends[job.Backend]
	if !ok {
		log.Error("unknown backend", "backend", job.Backend)
		job.AddError("unknown backend: " + job.Backend)
		job.SetStatus(StatusFailed)
		return
	}

	job.SetStatus(StatusSegmenting)
	seg, err := segment.ForSource(job.Filename, o.segOpts)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed)
		return
	}
	units, err := seg.Segment(data, job.Filename)
	if err != nil {
		log.Error("segmentation failed", "error", err)
		job.AddError(fmt.Sprintf("segment: %s", err))
		job.SetStatus(StatusFailed)
		metrics.DocumentConverted("segmentation_error")
		return
	}
	job.SetTotalUnits(len(units))
	log.Info("segmented document", "units", len(units))

	doc := &document.Document{
		Source:      job.Filename,
		ContentHash: hash,
		Units:       units,
	}

	job.SetStatus(StatusExtracting)
	re, err := o.converter.Convert(ctx, doc, be)
	if err != nil {
		var aborted *AbortedError
		if errors.As(err, &aborted) {
			job.AddError(aborted.Error())
			metrics.DocumentConverted("aborted")
		} else {
			job.AddError(fmt.Sprintf("convert: %s", err))
			metrics.DocumentConverted("error")
		}
		log.Error("conversion failed", "error", err)
		job.SetStatus(StatusFailed)
		return
	}

	failed, skipped := 0, 0
	for _, b := range re.Boundaries {
		switch b.Status {
		case document.StatusFailed:
			failed++
		case document.StatusSkipped:
			skipped++
		}
	}

	job.SetStatus(StatusChunking)
	splitCfg := o.splitCfg
	if size, overlap := job.ChunkOverrides(); size > 0 || overlap > 0 {
		if size > 0 {
			splitCfg.MaxSize = size
		}
		if overlap > 0 {
			splitCfg.Overlap = overlap
			if splitCfg.Mode == outline.OverlapNone {
				splitCfg.Mode = outline.OverlapChars
			}
		}
	}
	chunks := outline.Split(outline.Parse(re.Markdown), splitCfg)
	metrics.ChunksProduced(len(chunks))
	log.Info("chunked document", "chunks", len(chunks))

	job.SetStatus(StatusStoring)
	rec := store.Record{
		DocID:        docID,
		Source:       job.Filename,
		Title:        job.Title,
		Backend:      be.Name(),
		ContentHash:  hash,
		Markdown:     re.Markdown,
		Boundaries:   re.Boundaries,
		Chunks:       chunks,
		UnitCount:    len(units),
		UnitsFailed:  failed,
		UnitsSkipped: skipped,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.Save(ctx, rec); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		job.SetStatus(StatusFailed)
		metrics.DocumentConverted("store_error")
		return
	}
	job.SetDoc(docID)
	job.SetOutcome(failed, skipped, len(chunks))

	if failed > 0 || skipped > 0 {
		job.SetStatus(StatusPartial)
		metrics.DocumentConverted("partial")
	} else {
		job.SetStatus(StatusCompleted)
		metrics.DocumentConverted("completed")
	}
	log.Info("conversion complete",
		"doc_id", docID,
		"units", len(units),
		"failed", failed,
		"skipped", skipped,
		"chunks", len(chunks))
}
