package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql/parser"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// Field names used for Prometheus data shipped by the Elastic Prometheus
// integration.
const (
	promLabelField  = "prometheus.labels.%s"
	promMetricField = "prometheus.metrics.%s"
)

var (
	// [$__rate_interval], [${interval}], [$__range]
	rangeVarRe = regexp.MustCompile(`\[\s*\$\{?[A-Za-z0-9_]+\}?\s*(?::\s*\$\{?[A-Za-z0-9_]+\}?\s*)?\]`)
	// Remaining Grafana globals outside range brackets ($__interval_ms ...).
	globalVarRe = regexp.MustCompile(`\$\{?__[A-Za-z0-9_]+\}?`)
	// Regex values that are plain alternations: a|b|c
	alternationRe = regexp.MustCompile(`^[A-Za-z0-9_\-/:@]+(\|[A-Za-z0-9_\-/:@]+)*$`)
	// Regex values that only use .* / .+ around literals.
	simpleWildcardRe = regexp.MustCompile(`^(\.\*|\.\+|[A-Za-z0-9_\-/:@]|\\\.)*$`)
	// Regex values that accept every label value, the empty one included.
	matchAllRe = regexp.MustCompile(`^(\.\*)+$`)
)

// prepPromQL substitutes Grafana macros with values the upstream parser
// accepts. The result is only used for parsing.
func prepPromQL(q string) string {
	q = rangeVarRe.ReplaceAllString(q, "[5m]")
	q = globalVarRe.ReplaceAllString(q, "60")
	return q
}

// translatePromQL lifts the label matchers of the most specific vector
// selector into a KQL filter. Functions, aggregations and arithmetic have no
// KQL equivalent and are dropped, so the result is always flagged for review.
func translatePromQL(req Request) (Result, []models.Warning) {
	parsed, err := parser.ParseExpr(prepPromQL(req.Expr))
	if err != nil {
		return identity(req, models.LanguageKQL), []models.Warning{parseFailed(req, err)}
	}

	var best *parser.VectorSelector
	bestScore := -1
	parser.Inspect(parsed, func(node parser.Node, _ []parser.Node) error {
		vs, ok := node.(*parser.VectorSelector)
		if !ok {
			return nil
		}
		score := 0
		for _, m := range vs.LabelMatchers {
			if m.Name != labels.MetricName {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = vs, score
		}
		return nil
	})

	if best == nil {
		return identity(req, models.LanguageKQL), []models.Warning{
			manualReview(req, "has no series selector to lift"),
		}
	}

	clauses, fields, dropped := matchersToKQL(best.LabelMatchers, promLabelField, promMetricField)
	warnings := []models.Warning{manualReview(req, "was reduced to its label selector")}
	if len(dropped) > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnManualReview, req.Path,
			"matchers not expressible in KQL were dropped: %s", strings.Join(dropped, ", ")))
	}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	return Result{
		Query:      joinAnd(clauses),
		Language:   models.LanguageKQL,
		Translated: true,
		Fields:     fields,
	}, warnings
}

// matchersToKQL renders label matchers as KQL clauses. labelField and
// metricField are format strings taking the label or metric name; an empty
// metricField treats __name__ like any other label. Matchers on Grafana
// variables are left to the dashboard controls and reported as dropped.
func matchersToKQL(ms []*labels.Matcher, labelField, metricField string) (clauses, fields, dropped []string) {
	for _, m := range ms {
		if hasTemplateVar(m.Value) {
			dropped = append(dropped, m.String())
			continue
		}

		if m.Name == labels.MetricName && metricField != "" {
			if m.Type != labels.MatchEqual {
				dropped = append(dropped, m.String())
				continue
			}
			f := fmt.Sprintf(metricField, m.Value)
			clauses = append(clauses, f+" : *")
			fields = append(fields, f)
			continue
		}

		f := fmt.Sprintf(labelField, m.Name)
		clause, ok := matcherClause(f, m)
		if !ok {
			dropped = append(dropped, m.String())
			continue
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		fields = append(fields, f)
	}
	return clauses, fields, dropped
}

// matcherClause renders one label matcher. An empty clause with ok set means
// the matcher accepts every series and adds no constraint.
func matcherClause(field string, m *labels.Matcher) (string, bool) {
	switch m.Type {
	case labels.MatchEqual:
		if m.Value == "" {
			return "not " + field + " : *", true
		}
		return field + " : " + kqlQuote(m.Value), true
	case labels.MatchNotEqual:
		if m.Value == "" {
			return field + " : *", true
		}
		return "not " + field + " : " + kqlQuote(m.Value), true
	case labels.MatchRegexp:
		return regexMatch(field, m.Value, false)
	case labels.MatchNotRegexp:
		return regexMatch(field, m.Value, true)
	}
	return "", false
}

// regexMatch renders a fully anchored regex matcher, negated for !~. A
// missing label compares as the empty string, so "" and .* need their own
// cases: =~".*" keeps everything and !~".*" keeps nothing.
func regexMatch(field, re string, negate bool) (string, bool) {
	switch {
	case matchAllRe.MatchString(re):
		if negate {
			return "", false
		}
		return "", true
	case re == "":
		if negate {
			return field + " : *", true
		}
		return "not " + field + " : *", true
	}
	c, ok := regexClause(field, re)
	if !ok {
		return "", false
	}
	if negate {
		return "not " + c, true
	}
	return c, true
}

// regexClause handles the two regex shapes KQL can express: alternations of
// literals and literals with .* / .+ wildcards.
func regexClause(field, re string) (string, bool) {
	switch {
	case re == "":
		return "", false
	case re == ".+":
		return field + " : *", true
	case alternationRe.MatchString(re):
		parts := strings.Split(re, "|")
		if len(parts) == 1 {
			return field + " : " + kqlQuote(parts[0]), true
		}
		quoted := make([]string, len(parts))
		for i, p := range parts {
			quoted[i] = kqlQuote(p)
		}
		return field + " : (" + strings.Join(quoted, " or ") + ")", true
	case simpleWildcardRe.MatchString(re):
		v := strings.NewReplacer(".*", "*", ".+", "*", `\.`, ".").Replace(re)
		return field + " : " + kqlWildcard(v), true
	}
	return "", false
}
