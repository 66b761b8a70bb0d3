package worker

import (
	"context"
	"fmt"
	"time"

	"car-report/internal/llm"
	"car-report/internal/metrics"
	"car-report/internal/models"
	"car-report/internal/normalize"
	"car-report/internal/render"
	"car-report/internal/reportparse"
	redisclient "car-report/pkg/database/redis"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ReportStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error
	Complete(ctx context.Context, id uuid.UUID, summary reportparse.Summary, record []byte, degraded bool, html string) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

type ObjectStore interface {
	DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

type Cache interface {
	Delete(ctx context.Context, keys ...string) error
}

type Analyzer interface {
	Analyze(ctx context.Context, payloads []models.ImagePayload) (string, error)
}

type Processor struct {
	store      ReportStore
	objects    ObjectStore
	cache      Cache
	normalizer *normalize.Normalizer
	analyzer   Analyzer
	metrics    *metrics.Metrics
	logoURL    string
}

func NewProcessor(store ReportStore, objects ObjectStore, cache Cache, normalizer *normalize.Normalizer, analyzer Analyzer, m *metrics.Metrics, logoURL string) *Processor {
	return &Processor{
		store:      store,
		objects:    objects,
		cache:      cache,
		normalizer: normalizer,
		analyzer:   analyzer,
		metrics:    m,
		logoURL:    logoURL,
	}
}

// ProcessReport builds one report: download, normalize, analyze, parse,
// render and store. A degraded parse still completes the report. Any other
// failure marks the report failed and is returned.
func (p *Processor) ProcessReport(ctx context.Context, task models.TaskMessage) error {
	reportID, err := uuid.Parse(task.ReportID)
	if err != nil {
		return fmt.Errorf("invalid report ID %q: %w", task.ReportID, err)
	}
	logger := log.With().Str("report_id", task.ReportID).Logger()
	ctx = llm.WithReportID(ctx, task.ReportID)
	started := time.Now()

	logger.Info().Int("images", len(task.ObjectKeys)).Msg("Starting report processing")

	if err := p.store.UpdateStatus(ctx, reportID, models.ReportStatusProcessing); err != nil {
		return p.fail(ctx, logger, reportID, fmt.Errorf("failed to update status to processing: %w", err))
	}

	files, err := p.download(ctx, task)
	if err != nil {
		return p.fail(ctx, logger, reportID, err)
	}

	payloads := p.normalize(ctx, logger, files)
	if len(payloads) == 0 {
		return p.fail(ctx, logger, reportID, fmt.Errorf("none of the %d image(s) could be decoded", len(files)))
	}

	stage := time.Now()
	raw, err := p.analyzer.Analyze(ctx, payloads)
	p.observe("analyze", stage)
	if err != nil {
		return p.fail(ctx, logger, reportID, err)
	}

	result := reportparse.Parse(raw)
	p.parseOutcome(logger, result)

	html, err := render.HTML(result.Record, render.Branding{LogoURL: p.logoURL})
	if err != nil {
		return p.fail(ctx, logger, reportID, err)
	}
	record, err := result.Record.JSON()
	if err != nil {
		return p.fail(ctx, logger, reportID, fmt.Errorf("failed to encode record: %w", err))
	}

	summary := reportparse.SummaryOf(result.Record)
	if err := p.store.Complete(ctx, reportID, summary, record, result.Degraded, html); err != nil {
		return p.fail(ctx, logger, reportID, fmt.Errorf("failed to store report: %w", err))
	}
	p.invalidate(ctx, logger, reportID)

	p.observe("total", started)
	if p.metrics != nil {
		p.metrics.ReportProcessed(string(models.ReportStatusCompleted))
	}
	logger.Info().
		Str("vin", summary.VIN).
		Str("parse", result.Outcome()).
		Dur("elapsed", time.Since(started)).
		Msg("Successfully processed report")
	return nil
}

func (p *Processor) download(ctx context.Context, task models.TaskMessage) ([]normalize.SourceFile, error) {
	stage := time.Now()
	defer p.observe("download", stage)

	files := make([]normalize.SourceFile, 0, len(task.ObjectKeys))
	for i, key := range task.ObjectKeys {
		data, err := p.objects.DownloadFile(ctx, task.BucketName, key)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		label := key
		if i < len(task.Labels) && task.Labels[i] != "" {
			label = task.Labels[i]
		}
		files = append(files, normalize.SourceFile{Label: label, Data: data})
	}
	return files, nil
}

// normalize keeps the payloads of every decodable file, in upload order.
func (p *Processor) normalize(ctx context.Context, logger zerolog.Logger, files []normalize.SourceFile) []models.ImagePayload {
	stage := time.Now()
	defer p.observe("normalize", stage)

	results := p.normalizer.NormalizeBatch(ctx, files)
	for _, r := range results {
		if r.Err != nil {
			logger.Warn().Err(r.Err).Str("file", r.Label).Msg("Skipping image")
			if p.metrics != nil {
				p.metrics.DecodeFailed()
			}
		}
	}

	payloads := normalize.Flatten(results)
	if p.metrics != nil {
		p.metrics.ObservePayloads(len(payloads))
		for _, pl := range payloads {
			p.metrics.ObserveQuality(pl.Quality)
		}
	}
	logger.Debug().Int("files", len(files)).Int("payloads", len(payloads)).Msg("Images normalized")
	return payloads
}

func (p *Processor) parseOutcome(logger zerolog.Logger, result reportparse.Result) {
	if p.metrics != nil {
		p.metrics.ParseOutcome(result.Outcome())
	}

	switch {
	case result.Degraded:
		logger.Warn().Err(result.Err).Msg("Model response could not be parsed, storing raw text")
		return
	case result.WasRepaired:
		logger.Warn().Err(result.Err).Msg("Model response was truncated and repaired")
	}

	report, err := reportparse.Decode(result.Record)
	if err != nil {
		logger.Warn().Err(err).Msg("Report sections have an unexpected shape")
	}
	for _, issue := range reportparse.Validate(report) {
		logger.Warn().Str("field", issue.Field).Str("rule", issue.Rule).Str("value", issue.Value).Msg("Report value failed validation")
	}
}

func (p *Processor) fail(ctx context.Context, logger zerolog.Logger, id uuid.UUID, cause error) error {
	logger.Error().Err(cause).Msg("Report processing failed")
	if p.metrics != nil {
		p.metrics.ReportProcessed(string(models.ReportStatusFailed))
	}

	// Record the failure even if the task context has expired.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.Fail(storeCtx, id, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to mark report as failed")
	}
	p.invalidate(storeCtx, logger, id)
	return cause
}

func (p *Processor) invalidate(ctx context.Context, logger zerolog.Logger, id uuid.UUID) {
	if err := p.cache.Delete(ctx, redisclient.ReportKey(id.String())); err != nil {
		logger.Warn().Err(err).Msg("Failed to invalidate cache")
	}
}

func (p *Processor) observe(stage string, since time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, time.Since(since))
	}
}
