package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/dashbridge/internal/assembler"
	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/enrich"
	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/mapping"
	"github.com/platformbuilds/dashbridge/internal/metrics"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/tracing"
	"github.com/platformbuilds/dashbridge/internal/validation"
)

// ErrConversionAborted wraps a panic recovered inside the pipeline.
var ErrConversionAborted = errors.New("conversion aborted")

// Progress checkpoints. Panel mapping fills the range between
// ProgressValidated and ProgressPanels in proportion to panels done.
const (
	ProgressValidated = 10
	ProgressPanels    = 55
	ProgressVariables = 65
	ProgressMapped    = 75
	ProgressAssembled = 95
	ProgressDone      = 100
)

// Stage names reported with progress.
const (
	StageValidate    = "validate"
	StagePanels      = "panels"
	StageVariables   = "variables"
	StageAnnotations = "annotations"
	StageAssemble    = "assemble"
	StagePersist     = "persist"
	StageDone        = "done"
)

// ProgressFunc receives checkpoints in non-decreasing order.
type ProgressFunc func(progress int, stage string)

// ConvertRequest is one conversion.
type ConvertRequest struct {
	Raw     []byte
	Options models.ConversionOptions
	// Mode labels metrics and spans: sync, job or batch.
	Mode     string
	Progress ProgressFunc
}

// ConversionResult separates the produced dashboard from its warnings.
// A non-nil error from Convert means there is no result at all.
type ConversionResult struct {
	Source    *models.SourceDashboard
	Dashboard *models.TargetDashboard
	Encoded   *assembler.Encoded
	Options   models.ConversionOptions
	Summary   models.ConversionSummary
	Warnings  []models.Warning
}

// Converter runs the validate, map, assemble pipeline.
type Converter struct {
	cfg       config.ConversionConfig
	validator *validation.Validator
	assembler *assembler.Assembler
	enricher  enrich.Enricher
	tracer    *tracing.ConversionTracer
	logger    logging.Logger
}

func NewConverter(cfg config.ConversionConfig, enricher enrich.Enricher, logger logging.Logger) *Converter {
	if enricher == nil {
		enricher = enrich.Noop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.PanelConcurrency < 1 {
		cfg.PanelConcurrency = 1
	}
	return &Converter{
		cfg:       cfg,
		validator: validation.NewValidator(),
		assembler: assembler.New(cfg.TargetVersions),
		enricher:  enricher,
		tracer:    tracing.NewConversionTracer(),
		logger:    logger,
	}
}

// EnrichmentEnabled reports whether query suggestions are requested.
func (c *Converter) EnrichmentEnabled() bool { return c.enricher.Enabled() }

// Config returns the conversion settings in effect.
func (c *Converter) Config() config.ConversionConfig { return c.cfg }

// ResolveOptions fills the configured defaults and rejects unknown target
// versions.
func (c *Converter) ResolveOptions(opts models.ConversionOptions) (models.ConversionOptions, error) {
	if opts.TargetVersion == "" {
		opts.TargetVersion = c.cfg.DefaultTargetVersion
	}
	if opts.IndexPattern == "" {
		opts.IndexPattern = c.cfg.DefaultIndexPattern
	}
	if !c.assembler.Supports(opts.TargetVersion) {
		verr := &models.ValidationError{}
		verr.Add("options.target_version", fmt.Sprintf("unsupported target version %q (supported: %v)",
			opts.TargetVersion, c.cfg.VersionNames()))
		return opts, verr
	}
	return opts, nil
}

// Validate checks raw without converting it.
func (c *Converter) Validate(raw []byte) (*models.SourceDashboard, error) {
	return c.validator.Validate(raw)
}

// Preflight summarises a validated dashboard and reports the conditions
// worth knowing before converting it.
func (c *Converter) Preflight(src *models.SourceDashboard) (models.ConversionSummary, []models.Warning) {
	sum := models.ConversionSummary{
		TotalPanels:      len(src.Panels),
		TotalVariables:   len(src.Variables),
		TotalAnnotations: len(src.Annotations),
		PanelTypes:       map[string]int{},
		Datasources:      src.DatasourceTypes(),
	}
	for _, p := range src.Panels {
		sum.PanelTypes[p.Type]++
		if mapping.IsSupported(p.Type) {
			sum.SupportedPanels++
		} else {
			sum.UnsupportedPanels++
		}
	}

	var warnings []models.Warning
	if sum.UnsupportedPanels > 0 {
		types := make([]string, 0)
		for t := range sum.PanelTypes {
			if !mapping.IsSupported(t) {
				types = append(types, t)
			}
		}
		sort.Strings(types)
		warnings = append(warnings, models.NewWarning(models.WarnUnsupportedPanel, "panels",
			"%d panels have no Kibana equivalent and will become markdown stubs: %v", sum.UnsupportedPanels, types))
	}
	warnings = append(warnings, src.Warnings...)
	return sum, append(warnings, c.shapeWarnings(sum)...)
}

// shapeWarnings flags dashboards that convert but deserve a second look.
func (c *Converter) shapeWarnings(sum models.ConversionSummary) []models.Warning {
	var warnings []models.Warning
	if limit := c.cfg.LargeDashboardPanels; limit > 0 && sum.TotalPanels > limit {
		warnings = append(warnings, models.NewWarning(models.WarnLargeDashboard, "panels",
			"dashboard has %d panels (more than %d); the Kibana dashboard may load slowly", sum.TotalPanels, limit))
	}
	if len(sum.Datasources) == 0 && sum.TotalPanels > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnNoDatasources, "panels",
			"no datasources detected; queries will be treated as unknown"))
	}
	return warnings
}

// Convert validates req.Raw and converts it. Rejected input returns a
// *models.ValidationError; mapping problems degrade into warnings.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) (res *ConversionResult, err error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = "sync"
	}
	report := newProgressReporter(req.Progress)

	ctx, span := c.tracer.StartConversionSpan(ctx, mode, req.Options.TargetVersion)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrConversionAborted, r)
			tracing.RecordError(span, err)
			metrics.ConversionsTotal.WithLabelValues(mode, "failed").Inc()
			c.logger.Error("conversion aborted", "mode", mode, "panic", r)
		}
	}()

	_, vspan := c.tracer.StartStageSpan(ctx, StageValidate)
	src, err := c.validator.Validate(req.Raw)
	if err == nil {
		req.Options, err = c.ResolveOptions(req.Options)
	}
	if err != nil {
		tracing.RecordError(vspan, err)
		vspan.End()
		tracing.RecordResult(span, time.Since(start), 0, 0, err)
		metrics.ConversionsTotal.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}
	vspan.End()
	report.set(ProgressValidated, StageValidate)

	res, err = c.convertSource(ctx, src, req.Options, report)
	elapsed := time.Since(start)
	metrics.ConversionDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err != nil {
		tracing.RecordResult(span, elapsed, len(src.Panels), 0, err)
		metrics.ConversionsTotal.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}
	res.Summary.ElapsedMs = elapsed.Milliseconds()
	tracing.RecordResult(span, elapsed, len(src.Panels), len(res.Warnings), nil)
	metrics.ConversionsTotal.WithLabelValues(mode, "completed").Inc()
	for _, w := range res.Warnings {
		metrics.WarningsTotal.WithLabelValues(w.Code).Inc()
	}

	c.logger.Debug("dashboard converted",
		"title", src.Title,
		"mode", mode,
		"panels", res.Summary.TotalPanels,
		"unsupported", res.Summary.UnsupportedPanels,
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Summary.ElapsedMs)
	return res, nil
}

func (c *Converter) convertSource(ctx context.Context, src *models.SourceDashboard, opts models.ConversionOptions, report *progressReporter) (*ConversionResult, error) {
	key := src.UID
	if key == "" {
		key = src.Title
	}
	mopts := mapping.Options{ConversionOptions: opts, DashboardKey: key}
	ds := mapping.NewDatasourceResolver(src.Variables)

	summary, _ := c.Preflight(src)
	// Panel counts come from the mapping outcome below.
	summary.SupportedPanels, summary.UnsupportedPanels = 0, 0
	warnings := append(append([]models.Warning{}, src.Warnings...), c.shapeWarnings(summary)...)
	if !opts.ConvertQueries {
		warnings = append(warnings, models.NewWarning(models.WarnTranslationSkipped, "",
			"query translation disabled; source expressions are kept verbatim"))
	}

	// Panels, in parallel, one slot per panel.
	pctx, pspan := c.tracer.StartStageSpan(ctx, StagePanels)
	results := make([]mapping.PanelResult, len(src.Panels))
	var (
		g    errgroup.Group
		done int
		mu   sync.Mutex
	)
	g.SetLimit(c.cfg.PanelConcurrency)
	for i := range src.Panels {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: panel %s: %v", ErrConversionAborted, src.Panels[i].ID, r)
				}
			}()
			r := mapping.MapPanel(src.Panels[i], i, mopts, ds)
			if c.enricher.Enabled() && opts.ConvertQueries {
				for qi := range r.Visualization.Queries {
					path := fmt.Sprintf("panels[%d].queries[%d]", i, qi)
					if w := c.enricher.Enrich(pctx, &r.Visualization.Queries[qi], path); w != nil {
						r.Warnings = append(r.Warnings, *w)
					}
				}
			}
			results[i] = r

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			report.set(ProgressValidated+(ProgressPanels-ProgressValidated)*n/len(src.Panels), StagePanels)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.RecordError(pspan, err)
		pspan.End()
		return nil, err
	}
	pspan.End()
	report.set(ProgressPanels, StagePanels)

	visualizations := make([]models.TargetVisualization, len(results))
	for i, r := range results {
		visualizations[i] = r.Visualization
		warnings = append(warnings, r.Warnings...)
		if r.Supported {
			summary.SupportedPanels++
		} else {
			summary.UnsupportedPanels++
		}
		summary.TranslatedQueries += r.Translated
		summary.PassthroughQueries += r.Passthrough
		metrics.PanelsConverted.WithLabelValues(string(r.Visualization.Family)).Inc()
		for _, q := range r.Visualization.Queries {
			result := "passthrough"
			if q.Translated {
				result = "translated"
			}
			metrics.QueryTranslations.WithLabelValues(q.DatasourceKind, result).Inc()
		}
	}

	// Variables and annotations.
	_, mspan := c.tracer.StartStageSpan(ctx, StageVariables)
	vars := mapping.MapVariables(src.Variables, mopts, ds)
	warnings = append(warnings, vars.Warnings...)
	summary.SupportedVariables = vars.Supported
	summary.UnsupportedVariables = vars.Unsupported
	summary.TranslatedQueries += vars.Translated
	summary.PassthroughQueries += vars.Passthrough
	report.set(ProgressVariables, StageVariables)

	anns := mapping.MapAnnotations(src.Annotations, mopts, ds)
	warnings = append(warnings, anns.Warnings...)
	summary.ConvertedAnnotations = anns.Converted
	summary.TranslatedQueries += anns.Translated
	summary.PassthroughQueries += anns.Passthrough
	mspan.End()
	report.set(ProgressMapped, StageAnnotations)

	// Assembly.
	_, aspan := c.tracer.StartStageSpan(ctx, StageAssemble)
	defer aspan.End()
	td, awarnings, err := c.assembler.Build(assembler.Input{
		Source:         src,
		Options:        opts,
		Visualizations: visualizations,
		Controls:       vars.Controls,
		Annotations:    anns.Layers,
	})
	if err != nil {
		// Target versions are checked in ResolveOptions.
		tracing.RecordError(aspan, err)
		return nil, err
	}
	warnings = append(warnings, awarnings...)
	enc, err := assembler.Encode(td)
	if err != nil {
		tracing.RecordError(aspan, err)
		return nil, err
	}
	report.set(ProgressAssembled, StageAssemble)

	if warnings == nil {
		warnings = []models.Warning{}
	}
	return &ConversionResult{
		Source:    src,
		Dashboard: td,
		Encoded:   enc,
		Options:   opts,
		Summary:   summary,
		Warnings:  warnings,
	}, nil
}

// progressReporter serialises callbacks from panel workers and drops
// anything that would move progress backwards.
type progressReporter struct {
	mu   sync.Mutex
	last int
	fn   ProgressFunc
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) set(progress int, stage string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if progress < p.last {
		return
	}
	p.last = progress
	p.fn(progress, stage)
}
