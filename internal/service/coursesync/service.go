// Package coursesync copies the course catalog from the learning platform
// into the retrieval index.
package coursesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/michi/internal/model"
	"github.com/ashita-ai/michi/internal/storage"
	"github.com/ashita-ai/michi/internal/telemetry"
)

// Catalog is the part of the backend client the sync reads from.
type Catalog interface {
	FetchAllCourses(ctx context.Context) ([]model.Course, error)
	FetchCourseDetail(ctx context.Context, courseID int64) (model.CourseDetail, error)
}

// Releaser is implemented by catalogs that hold pooled connections.
type Releaser interface {
	Release()
}

// Indexer is the part of the retrieval index the sync writes to.
type Indexer interface {
	Index(ctx context.Context, docs []model.CourseDocument, batchSize int) (int, error)
	Reset(ctx context.Context) error
}

// Config tunes a Service. Zero values pick defaults.
type Config struct {
	// BatchSize is the number of documents per index call. Defaults to 100.
	BatchSize int

	// DetailConcurrency bounds parallel detail fetches. Defaults to 4.
	DetailConcurrency int

	// RunTimeout bounds one run. A run is detached from the caller that
	// started it, so this is what stops it. Defaults to 30 minutes.
	RunTimeout time.Duration

	// Ledger records every run. Nil disables recording.
	Ledger storage.Ledger

	Logger *slog.Logger
}

// Service runs catalog synchronizations. Concurrent calls to Run with the
// same force flag share one run, and runs never overlap.
type Service struct {
	catalog     Catalog
	index       Indexer
	ledger      storage.Ledger
	batchSize   int
	concurrency int
	runTimeout  time.Duration
	logger      *slog.Logger

	group singleflight.Group
	runMu sync.Mutex

	tracer       trace.Tracer
	runDuration  metric.Float64Histogram
	indexedCount metric.Int64Histogram
}

// New creates a Service.
func New(catalog Catalog, index Indexer, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	conc := cfg.DetailConcurrency
	if conc <= 0 {
		conc = 4
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}

	meter := telemetry.Meter("michi/coursesync")
	runDur, _ := meter.Float64Histogram("michi.sync.duration",
		metric.WithDescription("Wall time of a catalog sync (ms)"),
		metric.WithUnit("ms"),
	)
	indexed, _ := meter.Int64Histogram("michi.sync.indexed",
		metric.WithDescription("Documents indexed per sync"),
	)

	return &Service{
		catalog:      catalog,
		index:        index,
		ledger:       cfg.Ledger,
		batchSize:    batch,
		concurrency:  conc,
		runTimeout:   runTimeout,
		logger:       logger,
		tracer:       telemetry.Tracer("michi/coursesync"),
		runDuration:  runDur,
		indexedCount: indexed,
	}
}

// Run synchronizes the catalog and returns the number of documents indexed.
// With force set, the index is reset first. A course whose detail cannot be
// fetched is logged and skipped; only a failed catalog fetch (or reset, or
// index write) fails the run. Pooled backend connections are released when
// the run ends, however it ends.
func (s *Service) Run(ctx context.Context, force bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Detached from ctx: every joined caller gets this run's result, so one
	// caller leaving must not fail the rest. Each caller still stops
	// waiting when its own ctx ends.
	runCtx := context.WithoutCancel(ctx)
	key := "sync:" + strconv.FormatBool(force)
	ch := s.group.DoChan(key, func() (any, error) {
		s.runMu.Lock()
		defer s.runMu.Unlock()
		rctx, cancel := context.WithTimeout(runCtx, s.runTimeout)
		defer cancel()
		return s.run(rctx, force)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("coursesync: joined in-flight run", "force", force)
		}
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		s.logger.Info("coursesync: caller left, run continues", "force", force, "error", ctx.Err())
		return 0, ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, force bool) (n int, err error) {
	if r, ok := s.catalog.(Releaser); ok {
		defer r.Release()
	}

	ctx, span := s.tracer.Start(ctx, "coursesync.run",
		trace.WithAttributes(attribute.Bool("michi.sync.force", force)))
	defer span.End()

	record := storage.SyncRun{ID: uuid.New(), StartedAt: time.Now().UTC(), Forced: force}
	defer func() {
		record.FinishedAt = time.Now().UTC()
		record.Indexed = n
		if err != nil {
			record.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		elapsed := float64(record.FinishedAt.Sub(record.StartedAt).Milliseconds())
		s.runDuration.Record(ctx, elapsed)
		s.indexedCount.Record(ctx, int64(n))
		span.SetAttributes(attribute.Int("michi.sync.indexed", n))
		s.recordRun(ctx, record)
	}()

	if force {
		if err := s.index.Reset(ctx); err != nil {
			return 0, fmt.Errorf("coursesync: reset index: %w", err)
		}
	}

	courses, err := s.catalog.FetchAllCourses(ctx)
	if err != nil {
		return 0, fmt.Errorf("coursesync: fetch catalog: %w", err)
	}
	record.Fetched = len(courses)
	if len(courses) == 0 {
		s.logger.Info("coursesync: catalog is empty")
		return 0, nil
	}

	docs := s.buildDocuments(ctx, courses)
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("coursesync: build documents: %w", err)
	}
	record.Skipped = len(courses) - len(docs)
	if len(docs) == 0 {
		s.logger.Warn("coursesync: no course could be built", "fetched", len(courses))
		return 0, nil
	}

	n, err = s.index.Index(ctx, docs, s.batchSize)
	if err != nil {
		return n, fmt.Errorf("coursesync: index documents: %w", err)
	}
	s.logger.Info("coursesync: sync complete",
		"fetched", len(courses), "indexed", n, "skipped", record.Skipped, "force", force)
	return n, nil
}

// buildDocuments fetches details with bounded concurrency. The returned
// documents keep catalog order; failed courses are dropped.
func (s *Service) buildDocuments(ctx context.Context, courses []model.Course) []model.CourseDocument {
	slots := make([]*model.CourseDocument, len(courses))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, course := range courses {
		if course.ID == 0 {
			s.logger.Warn("coursesync: skipping course without id", "course_name", course.Name)
			continue
		}
		g.Go(func() error {
			detail, err := s.catalog.FetchCourseDetail(ctx, course.ID)
			if err != nil {
				s.logger.Warn("coursesync: skipping course", "course_id", course.ID, "error", err)
				return nil
			}
			doc := BuildDocument(course, detail)
			slots[i] = &doc
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]model.CourseDocument, 0, len(courses))
	for _, d := range slots {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs
}

func (s *Service) recordRun(ctx context.Context, run storage.SyncRun) {
	if s.ledger == nil {
		return
	}
	// The run is recorded even when the caller's context was canceled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.ledger.RecordRun(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("coursesync: record run failed", "run_id", run.ID, "error", err)
	}
}
