package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrisx599/ChatEmail/internal/cache"
	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

// ErrNoEmails is returned by Run when called with an empty batch.
var ErrNoEmails = errors.New("no emails supplied")

type Analyzer interface {
	AnalyzeEmail(ctx context.Context, subject, body, from string) (*models.Analysis, error)
}

type Synthesizer interface {
	SynthesizeReport(ctx context.Context, emails []models.AnalyzedEmail) (*models.BatchReport, error)
}

type AnalysisStore interface {
	GetAnalyzedEmails(ctx context.Context) []models.AnalyzedEmail
	SaveAnalyzedEmails(ctx context.Context, analyzed []models.AnalyzedEmail) error
}

type EventStore interface {
	GetCalendarEvents(ctx context.Context) []models.CalendarEvent
	SaveCalendarEvents(ctx context.Context, events []models.CalendarEvent) error
}

type ReportStore interface {
	GetBatchSummary(ctx context.Context) *models.BatchReport
	SaveBatchSummary(ctx context.Context, report *models.BatchReport) error
}

// Stores are the collections a batch reads from and writes through.
type Stores struct {
	Analyses AnalysisStore
	Events   EventStore
	Reports  ReportStore
}

func StoresFrom(m *cache.Manager) Stores {
	return Stores{Analyses: m.AnalyzedEmails, Events: m.CalendarEvents, Reports: m.BatchSummary}
}

type Config struct {
	// MaxConcurrency bounds in-flight analyses. Zero analyzes every email at once.
	MaxConcurrency int
	// ItemTimeout bounds one analysis. Zero leaves it to the caller's context.
	ItemTimeout time.Duration
}

// Source tells where an email's analysis came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
)

// Progress is reported once per settled email.
type Progress struct {
	BatchID   string `json:"batch_id"`
	EmailID   string `json:"email_id"`
	Source    Source `json:"source"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

type RunOption func(*runOptions)

type runOptions struct {
	progress func(Progress)
	refresh  bool
}

// WithProgress registers fn to observe each settled email. Calls are serialized.
func WithProgress(fn func(Progress)) RunOption {
	return func(o *runOptions) { o.progress = fn }
}

// WithRefresh ignores cached analyses and analyzes every email again.
func WithRefresh() RunOption {
	return func(o *runOptions) { o.refresh = true }
}

type Orchestrator struct {
	analyzer    Analyzer
	synthesizer Synthesizer
	stores      Stores
	cfg         Config
	log         *zap.Logger

	now   func() time.Time
	newID func() string

	generation atomic.Uint64
	persistMu  sync.Mutex

	latestMu sync.RWMutex
	latest   *models.Snapshot
}

func New(analyzer Analyzer, synthesizer Synthesizer, stores Stores, cfg Config) *Orchestrator {
	return &Orchestrator{
		analyzer:    analyzer,
		synthesizer: synthesizer,
		stores:      stores,
		cfg:         cfg,
		log:         logger.Named("batch"),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Run analyzes emails and returns the ranked snapshot. Per-email failures are
// replaced by Fallback and never fail the batch. When a newer Run starts
// before this one persists, the result is returned with Superseded set and
// nothing is written.
func (o *Orchestrator) Run(ctx context.Context, emails []models.Email, opts ...RunOption) (*models.Snapshot, error) {
	if len(emails) == 0 {
		return nil, ErrNoEmails
	}

	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	gen := o.generation.Add(1)
	batchID := o.newID()
	started := time.Now()
	log := o.log.With(zap.String("batch_id", batchID), zap.Uint64("generation", gen))

	log.Info("Batch started", zap.Int("emails", len(emails)), zap.Bool("refresh", ro.refresh))
	metrics.BatchSize.Observe(float64(len(emails)))

	report := newReporter(batchID, len(emails), ro.progress)

	var cached map[string]models.AnalyzedEmail
	if !ro.refresh {
		cached = indexByID(o.stores.Analyses.GetAnalyzedEmails(ctx))
	}

	var (
		analyzed  []models.AnalyzedEmail
		fromCache bool
	)
	if len(cached) == len(emails) && coversAll(cached, emails) {
		log.Info("All analyses cached, skipping enrichment")
		analyzed = make([]models.AnalyzedEmail, len(emails))
		for i, e := range emails {
			analyzed[i] = models.AnalyzedEmail{Email: e, Analysis: cached[e.ID].Analysis}
			report.settle(e.ID, SourceCache, nil)
		}
		fromCache = true
	} else {
		analyzed = o.enrich(ctx, emails, cached, report, log)
	}

	if err := ctx.Err(); err != nil {
		metrics.BatchTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("batch %s cancelled: %w", batchID, err)
	}

	ranked := Rank(analyzed)
	batchReport := o.synthesize(ctx, ranked, log)
	batchReport.BatchID = batchID
	batchReport.EmailIDs = make([]string, len(ranked))
	for i, a := range ranked {
		batchReport.EmailIDs[i] = a.ID
	}

	ids := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		ids[e.ID] = struct{}{}
	}
	var digest []models.CalendarEvent
	if batchReport.CalendarSummary != nil {
		digest = batchReport.CalendarSummary.Events
	}
	events := DedupEvents(
		ExtractEvents(ranked),
		digest,
		eventsForBatch(o.stores.Events.GetCalendarEvents(ctx), ids),
	)

	snap := &models.Snapshot{
		BatchID:        batchID,
		AnalyzedEmails: ranked,
		CalendarEvents: events,
		Report:         batchReport,
		GeneratedAt:    o.now().UTC(),
		FromCache:      fromCache,
	}

	source := string(SourceNetwork)
	if fromCache {
		source = string(SourceCache)
	}
	metrics.BatchDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())

	if !o.commit(ctx, gen, snap, log) {
		snap.Superseded = true
		metrics.BatchTotal.WithLabelValues("superseded").Inc()
		log.Warn("Batch superseded by a newer run, results not persisted")
		return snap, nil
	}

	metrics.BatchTotal.WithLabelValues("ok").Inc()
	log.Info("Batch completed",
		zap.Int("emails", len(ranked)),
		zap.Int("events", len(events)),
		zap.Int("categories", len(batchReport.Categories)),
		zap.Bool("from_cache", fromCache),
		zap.Duration("elapsed", time.Since(started)),
	)
	return snap, nil
}

// enrich analyzes every email without a cached analysis concurrently and
// waits for all of them.
func (o *Orchestrator) enrich(ctx context.Context, emails []models.Email, cached map[string]models.AnalyzedEmail, report *reporter, log *zap.Logger) []models.AnalyzedEmail {
	results := make([]models.AnalyzedEmail, len(emails))

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}

	for i, email := range emails {
		i, email := i, email
		if hit, ok := cached[email.ID]; ok {
			results[i] = models.AnalyzedEmail{Email: email, Analysis: hit.Analysis}
			metrics.EnrichmentTotal.WithLabelValues(string(SourceCache)).Inc()
			report.settle(email.ID, SourceCache, nil)
			continue
		}

		g.Go(func() error {
			analysis, err := o.analyzeOne(gctx, email)
			if err != nil {
				log.Warn("Email analysis failed, using fallback",
					zap.String("email_id", email.ID),
					zap.Error(err),
				)
				results[i] = models.AnalyzedEmail{Email: email, Analysis: Fallback(err.Error())}
				metrics.EnrichmentTotal.WithLabelValues(string(SourceFallback)).Inc()
				report.settle(email.ID, SourceFallback, err)
				return nil
			}
			results[i] = models.AnalyzedEmail{Email: email, Analysis: *analysis}
			metrics.EnrichmentTotal.WithLabelValues(string(SourceNetwork)).Inc()
			report.settle(email.ID, SourceNetwork, nil)
			return nil
		})
	}

	// Workers never return errors; each failure is already a fallback.
	_ = g.Wait()
	return results
}

func (o *Orchestrator) analyzeOne(ctx context.Context, email models.Email) (analysis *models.Analysis, err error) {
	if o.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ItemTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			analysis, err = nil, fmt.Errorf("analyzer panicked: %v", r)
		}
	}()

	analysis, err = o.analyzer.AnalyzeEmail(ctx, email.Subject, email.Body, email.From)
	if err == nil && analysis == nil {
		err = errors.New("analyzer returned no result")
	}
	return analysis, err
}

// synthesize asks for the batch grouping, falling back to urgency groups.
func (o *Orchestrator) synthesize(ctx context.Context, ranked []models.AnalyzedEmail, log *zap.Logger) *models.BatchReport {
	if o.synthesizer == nil {
		return GroupByUrgency(ranked)
	}

	report, err := o.synthesizer.SynthesizeReport(ctx, ranked)
	if err != nil || report == nil {
		log.Warn("Report synthesis failed, grouping by urgency", zap.Error(err))
		return GroupByUrgency(ranked)
	}
	return normalizeReport(report, ranked)
}

// commit persists snap unless a newer batch has started. Each collection is
// written independently; a failed write is logged and the rest continue.
func (o *Orchestrator) commit(ctx context.Context, gen uint64, snap *models.Snapshot, log *zap.Logger) bool {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if o.generation.Load() != gen {
		return false
	}

	if err := o.stores.Analyses.SaveAnalyzedEmails(ctx, snap.AnalyzedEmails); err != nil {
		log.Error("Failed to persist analyzed emails", zap.Error(err))
	}
	if err := o.stores.Events.SaveCalendarEvents(ctx, snap.CalendarEvents); err != nil {
		log.Error("Failed to persist calendar events", zap.Error(err))
	}
	if err := o.stores.Reports.SaveBatchSummary(ctx, snap.Report); err != nil {
		log.Error("Failed to persist batch summary", zap.Error(err))
	}

	o.latestMu.Lock()
	o.latest = snap
	o.latestMu.Unlock()
	return true
}

// Latest returns the snapshot of the most recent committed batch, or nil.
func (o *Orchestrator) Latest() *models.Snapshot {
	o.latestMu.RLock()
	defer o.latestMu.RUnlock()
	return o.latest
}

// LoadCached rebuilds the last batch from the stores. The analyses are
// limited to the emails the stored report was built from; analyses kept from
// earlier batches are left out. Missing events or report are derived from
// the analyses. It returns false when nothing is cached.
func (o *Orchestrator) LoadCached(ctx context.Context) (*models.Snapshot, bool) {
	analyzed := o.stores.Analyses.GetAnalyzedEmails(ctx)
	report := o.stores.Reports.GetBatchSummary(ctx)

	var batchID string
	if report != nil && len(report.EmailIDs) > 0 {
		batchID = report.BatchID
		analyzed = inBatch(analyzed, report.EmailIDs)
	}
	if len(analyzed) == 0 {
		return nil, false
	}
	ranked := Rank(analyzed)

	events := o.stores.Events.GetCalendarEvents(ctx)
	if events == nil {
		events = DedupEvents(ExtractEvents(ranked))
	}

	if report == nil {
		report = GroupByUrgency(ranked)
	}

	snap := &models.Snapshot{
		BatchID:        batchID,
		AnalyzedEmails: ranked,
		CalendarEvents: events,
		Report:         report,
		GeneratedAt:    o.now().UTC(),
		FromCache:      true,
	}

	o.latestMu.Lock()
	if o.latest == nil {
		o.latest = snap
	}
	o.latestMu.Unlock()
	return snap, true
}

// inBatch returns the analyses whose ids are listed, in list order.
func inBatch(analyzed []models.AnalyzedEmail, ids []string) []models.AnalyzedEmail {
	byID := indexByID(analyzed)
	out := make([]models.AnalyzedEmail, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func indexByID(analyzed []models.AnalyzedEmail) map[string]models.AnalyzedEmail {
	m := make(map[string]models.AnalyzedEmail, len(analyzed))
	for _, a := range analyzed {
		m[a.ID] = a
	}
	return m
}

func coversAll(cached map[string]models.AnalyzedEmail, emails []models.Email) bool {
	for _, e := range emails {
		if _, ok := cached[e.ID]; !ok {
			return false
		}
	}
	return true
}

type reporter struct {
	mu        sync.Mutex
	batchID   string
	total     int
	completed int
	fn        func(Progress)
}

func newReporter(batchID string, total int, fn func(Progress)) *reporter {
	return &reporter{batchID: batchID, total: total, fn: fn}
}

func (r *reporter) settle(emailID string, source Source, err error) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	p := Progress{
		BatchID:   r.batchID,
		EmailID:   emailID,
		Source:    source,
		Completed: r.completed,
		Total:     r.total,
	}
	if err != nil {
		p.Error = err.Error()
	}
	r.fn(p)
}
