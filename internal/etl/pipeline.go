package etl

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-clickstream-warehouse/internal/domain"
	"github.com/tbourn/go-clickstream-warehouse/internal/source"
)

// Pipeline stage names used in logs, spans and metrics.
const (
	StageRead      = "read"
	StageSanitize  = "sanitize"
	StageDimension = "dimensions"
	StageFacts     = "facts"
	StageIntegrity = "integrity"
)

// Pipeline runs the stages of one ETL build in order. The zero value uses the
// ByIDBrandPrice product key strategy.
type Pipeline struct {
	Strategy ProductKeyStrategy
}

// Result is everything one build produced. Dims indexes Warehouse's
// dimension tables.
type Result struct {
	Sanitize  SanitizeStats            `json:"sanitize"`
	Assembly  Assembly                 `json:"assembly"`
	Integrity IntegrityReport          `json:"integrity"`
	Durations map[string]time.Duration `json:"durations"`

	Warehouse domain.Warehouse `json:"-"`
	Dims      *Dimensions      `json:"-"`
}

// Run drains src and builds the star schema from its records. Only reading
// the source can fail; the transformation stages never return errors.
func (p Pipeline) Run(ctx context.Context, src source.RawEventSource) (*Result, error) {
	tr := otel.Tracer("etl/Pipeline")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	start := time.Now()
	raw, err := source.ReadAll(ctx, src)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	readDur := time.Since(start)
	stageDuration.WithLabelValues(StageRead).Observe(readDur.Seconds())

	res := p.Build(ctx, raw)
	res.Durations[StageRead] = readDur
	return res, nil
}

// Build runs the transformation stages over an in-memory batch.
func (p Pipeline) Build(ctx context.Context, raw []domain.RawEvent) *Result {
	tr := otel.Tracer("etl/Pipeline")
	ctx, span := tr.Start(ctx, "Build", trace.WithAttributes(attribute.Int("raw.count", len(raw))))
	defer span.End()

	strategy := p.Strategy
	if strategy == nil {
		strategy = ByIDBrandPrice{}
	}
	lg := log.With().Str("component", "etl").Str("product_key", strategy.Name()).Logger()
	res := &Result{Durations: make(map[string]time.Duration, 5)}

	rawEvents.Add(float64(len(raw)))

	var events []domain.CleanEvent
	res.Durations[StageSanitize] = stage(ctx, StageSanitize, func() {
		events, res.Sanitize = Sanitize(raw)
	})
	for reason, n := range res.Sanitize.Dropped {
		droppedEvents.WithLabelValues(string(reason)).Add(float64(n))
	}
	lg.Info().
		Int("raw", res.Sanitize.Raw).
		Int("clean", res.Sanitize.Clean).
		Int("dropped", res.Sanitize.DroppedTotal()).
		Dur("duration", res.Durations[StageSanitize]).
		Msg("sanitized events")

	res.Durations[StageDimension] = stage(ctx, StageDimension, func() {
		res.Dims = BuildDimensions(events, strategy)
	})
	lg.Info().
		Int("users", len(res.Dims.Users)).
		Int("products", len(res.Dims.Products)).
		Int("categories", len(res.Dims.Categories)).
		Int("sessions", len(res.Dims.Sessions)).
		Int("dates", len(res.Dims.Dates)).
		Dur("duration", res.Durations[StageDimension]).
		Msg("built dimensions")

	res.Durations[StageFacts] = stage(ctx, StageFacts, func() {
		res.Assembly = AssembleFacts(events, res.Dims)
	})
	factsBuilt.Add(float64(len(res.Assembly.Facts)))
	for reason, n := range res.Assembly.UnresolvedByReason() {
		unresolvedEvents.WithLabelValues(string(reason)).Add(float64(n))
	}
	ev := lg.Info()
	if len(res.Assembly.Unresolved) > 0 {
		ev = lg.Warn()
	}
	ev.Int("considered", res.Assembly.Considered).
		Int("facts", len(res.Assembly.Facts)).
		Int("unresolved", len(res.Assembly.Unresolved)).
		Dur("duration", res.Durations[StageFacts]).
		Msg("assembled facts")

	res.Durations[StageIntegrity] = stage(ctx, StageIntegrity, func() {
		res.Integrity = CheckIntegrity(res.Assembly.Facts, res.Dims)
	})
	observeIntegrity(res.Integrity)
	if !res.Integrity.Clean() {
		lg.Warn().Int64("violations", res.Integrity.Violations()).Msg("integrity check found violations")
	}

	res.Warehouse = domain.Warehouse{
		Events:     events,
		Users:      res.Dims.Users,
		Products:   res.Dims.Products,
		Categories: res.Dims.Categories,
		Sessions:   res.Dims.Sessions,
		Dates:      res.Dims.Dates,
		Facts:      res.Assembly.Facts,
	}
	return res
}

// stage times fn under its own span and histogram label.
func stage(ctx context.Context, name string, fn func()) time.Duration {
	_, span := otel.Tracer("etl/Pipeline").Start(ctx, name)
	defer span.End()

	start := time.Now()
	fn()
	d := time.Since(start)
	stageDuration.WithLabelValues(name).Observe(d.Seconds())
	return d
}
