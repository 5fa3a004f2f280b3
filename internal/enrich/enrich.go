// Package enrich asks a language model for a Kibana rewrite of queries the
// heuristic translator could only pass through or partially lift. Results
// are advisory: they land in TranslatedQuery.SuggestedQuery and never replace
// the translated query.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/metrics"
	"github.com/platformbuilds/dashbridge/internal/models"
)

// Provider is one language model backend.
type Provider interface {
	// Complete sends prompt and returns the model's text answer.
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
	Model() string
}

// Enricher adds suggestions to translated queries.
type Enricher interface {
	// Enrich may set q.SuggestedQuery. It returns a warning when it did.
	// Provider failures are logged and swallowed.
	Enrich(ctx context.Context, q *models.TranslatedQuery, path string) *models.Warning
	Enabled() bool
}

// Noop never suggests anything.
type Noop struct{}

func (Noop) Enrich(context.Context, *models.TranslatedQuery, string) *models.Warning { return nil }
func (Noop) Enabled() bool                                                          { return false }

// Service wraps a Provider with a memo and a per-call deadline.
type Service struct {
	provider Provider
	timeout  time.Duration
	memo     *lru.Cache[string, string]
	logger   logging.Logger
}

// NewService builds a Service. cacheSize < 1 disables the memo.
func NewService(p Provider, timeout time.Duration, cacheSize int, logger logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{provider: p, timeout: timeout, logger: logger}
	if cacheSize > 0 {
		memo, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("enrichment cache: %w", err)
		}
		s.memo = memo
	}
	return s, nil
}

// New returns the Enricher selected by cfg, or Noop when enrichment is off.
func New(cfg config.EnrichmentConfig, logger logging.Logger) (Enricher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAIProvider(cfg)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewService(p, cfg.EnrichmentTimeout(), cfg.CacheSize, logger)
}

func (s *Service) Enabled() bool { return true }

// Enrich only looks at queries that were passed through, or lifted with
// a manual-review caveat (anything that is not a search datasource).
func (s *Service) Enrich(ctx context.Context, q *models.TranslatedQuery, path string) *models.Warning {
	if q == nil || strings.TrimSpace(q.Source) == "" || q.DatasourceKind == "search" {
		return nil
	}
	key := q.DatasourceKind + "\x00" + q.Source
	provider := s.provider.Name()

	if s.memo != nil {
		if cached, ok := s.memo.Get(key); ok {
			metrics.EnrichmentRequests.WithLabelValues(provider, "hit").Inc()
			return s.apply(q, cached, path)
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	answer, err := s.provider.Complete(callCtx, buildPrompt(q))
	if err != nil {
		metrics.EnrichmentRequests.WithLabelValues(provider, "error").Inc()
		s.logger.Warn("query enrichment failed", "provider", provider, "model", s.provider.Model(), "path", path, "error", err)
		return nil
	}
	metrics.EnrichmentRequests.WithLabelValues(provider, "success").Inc()

	suggestion := cleanAnswer(answer)
	if s.memo != nil {
		s.memo.Add(key, suggestion)
	}
	return s.apply(q, suggestion, path)
}

func (s *Service) apply(q *models.TranslatedQuery, suggestion, path string) *models.Warning {
	if suggestion == "" || suggestion == q.Query {
		return nil
	}
	q.SuggestedQuery = suggestion
	w := models.NewWarning(models.WarnEnrichmentSuggested, path,
		"%s suggested a KQL rewrite; review suggestedQuery before using it", s.provider.Name())
	return &w
}

func buildPrompt(q *models.TranslatedQuery) string {
	var b strings.Builder
	b.WriteString("Rewrite the following Grafana ")
	b.WriteString(q.DatasourceKind)
	b.WriteString(" datasource query as a single Kibana KQL query over Elastic documents.\n")
	b.WriteString("Answer with the KQL query only, on one line, without explanation or code fences.\n\n")
	b.WriteString("Source query:\n")
	b.WriteString(q.Source)
	if q.Translated && q.Query != "" {
		b.WriteString("\n\nA heuristic produced this partial translation:\n")
		b.WriteString(q.Query)
	}
	return b.String()
}

// cleanAnswer strips code fences and keeps the first non-empty line.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```kql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
