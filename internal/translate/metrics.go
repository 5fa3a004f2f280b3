package translate

import (
	"regexp"
	"strings"

	"github.com/prometheus/prometheus/promql/parser"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// translateMetrics covers time-series query languages that Kibana cannot
// execute. Each dialect gets a best-effort filter extraction and every result
// carries a manual review warning.
func translateMetrics(req Request) (Result, []models.Warning) {
	if strings.TrimSpace(req.Expr) == "" {
		return identity(req, models.LanguageKQL), []models.Warning{
			manualReview(req, "is empty"),
		}
	}
	switch req.Dialect {
	case DialectLoki:
		return translateLogQL(req)
	case DialectInfluxDB:
		return translateInfluxQL(req)
	case DialectGraphite:
		return translateGraphite(req)
	default:
		return translatePromQL(req)
	}
}

var (
	streamSelectorRe = regexp.MustCompile(`^\s*(\{[^}]*\})`)
	lineFilterRe     = regexp.MustCompile(`(\|=|!=|\|~|!~)\s*("(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `)`)
)

// translateLogQL lifts the Loki stream selector and plain line filters.
func translateLogQL(req Request) (Result, []models.Warning) {
	m := streamSelectorRe.FindStringSubmatch(req.Expr)
	if m == nil {
		// Metric queries wrap the selector: rate({app="x"}[5m]). Fall back to
		// the PromQL parser, which understands that outer shape.
		return translatePromQL(req)
	}
	matchers, err := parser.ParseMetricSelector(m[1])
	if err != nil {
		return identity(req, models.LanguageKQL), []models.Warning{parseFailed(req, err)}
	}

	clauses, fields, dropped := matchersToKQL(matchers, "%s", "")
	for _, lf := range lineFilterRe.FindAllStringSubmatch(req.Expr[len(m[0]):], -1) {
		value := strings.Trim(lf[2], "`\"")
		switch lf[1] {
		case "|=":
			clauses = append(clauses, "message : "+kqlQuote(value))
		case "!=":
			clauses = append(clauses, "not message : "+kqlQuote(value))
		default:
			dropped = append(dropped, lf[0])
		}
	}

	warnings := []models.Warning{manualReview(req, "was reduced to its stream selector and line filters")}
	if len(dropped) > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnManualReview, req.Path,
			"filters not expressible in KQL were dropped: %s", strings.Join(dropped, ", ")))
	}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	return Result{Query: joinAnd(clauses), Language: models.LanguageKQL, Translated: true, Fields: fields}, warnings
}

var (
	influxFromRe  = regexp.MustCompile(`(?i)\bFROM\s+(?:"?[A-Za-z0-9_]+"?\.)*"?([A-Za-z0-9_\-]+)"?`)
	influxWhereRe = regexp.MustCompile(`(?is)\bWHERE\s+(.+?)(?:\bGROUP\s+BY\b|\bORDER\s+BY\b|\bLIMIT\b|\bFILL\b|$)`)
	influxCondRe  = regexp.MustCompile(`"?([A-Za-z0-9_\-.]+)"?\s*(=~|!~|=|!=|<>)\s*('(?:[^'\\]|\\.)*'|/(?:[^/\\]|\\.)*/)`)
)

// translateInfluxQL maps the measurement and tag predicates of an InfluxQL
// SELECT. Flux scripts are carried through.
func translateInfluxQL(req Request) (Result, []models.Warning) {
	q := req.Expr
	if strings.Contains(q, "|>") || strings.HasPrefix(strings.TrimSpace(q), "from(") {
		return identity(req, models.LanguageKQL), []models.Warning{manualReview(req, "is a Flux script and was carried through")}
	}
	if !strings.Contains(strings.ToUpper(q), "SELECT") {
		return identity(req, models.LanguageKQL), []models.Warning{manualReview(req, "is not an InfluxQL SELECT and was carried through")}
	}

	var clauses, fields, dropped []string
	if m := influxFromRe.FindStringSubmatch(q); m != nil {
		clauses = append(clauses, "influxdb.measurement : "+kqlQuote(m[1]))
		fields = append(fields, "influxdb.measurement")
	}
	if w := influxWhereRe.FindStringSubmatch(q); w != nil {
		for _, c := range influxCondRe.FindAllStringSubmatch(w[1], -1) {
			tag, op, raw := c[1], c[2], c[3]
			field := "influxdb.tags." + tag
			if hasTemplateVar(raw) {
				dropped = append(dropped, c[0])
				continue
			}
			var clause string
			ok := true
			if strings.HasPrefix(raw, "/") {
				re := strings.TrimSuffix(strings.TrimPrefix(strings.Trim(raw, "/"), "^"), "$")
				clause, ok = regexMatch(field, re, op == "!~")
			} else {
				clause = field + " : " + kqlQuote(strings.Trim(raw, "'"))
				if op == "!=" || op == "<>" {
					clause = "not " + clause
				}
			}
			if !ok {
				dropped = append(dropped, c[0])
				continue
			}
			if clause == "" {
				continue
			}
			clauses = append(clauses, clause)
			fields = append(fields, field)
		}
	}

	warnings := []models.Warning{manualReview(req, "was reduced to its measurement and tag filters")}
	if len(dropped) > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnManualReview, req.Path,
			"predicates not expressible in KQL were dropped: %s", strings.Join(dropped, ", ")))
	}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	return Result{Query: joinAnd(clauses), Language: models.LanguageKQL, Translated: true, Fields: fields}, warnings
}

var (
	graphiteSegment = `(?:[A-Za-z0-9_\-*$]|\{[^}]*\}|\[[^\]]*\])+`
	graphitePathRe  = regexp.MustCompile(graphiteSegment + `(?:\.` + graphiteSegment + `)+`)
	graphiteBraceRe = regexp.MustCompile(`\{[^}]*\}|\[[^\]]*\]`)
	numberRe        = regexp.MustCompile(`^[0-9.]+$`)
)

// translateGraphite turns the series paths inside a Graphite target into
// wildcard filters on the metric path field.
func translateGraphite(req Request) (Result, []models.Warning) {
	paths := graphitePathRe.FindAllString(req.Expr, -1)
	var clauses []string
	seen := map[string]bool{}
	for _, p := range paths {
		if numberRe.MatchString(p) {
			continue
		}
		if hasTemplateVar(p) {
			p = templateVarRe.ReplaceAllString(p, "*")
		}
		p = graphiteBraceRe.ReplaceAllString(p, "*")
		if seen[p] {
			continue
		}
		seen[p] = true
		if strings.Contains(p, "*") {
			clauses = append(clauses, "graphite.metric : "+kqlWildcard(p))
		} else {
			clauses = append(clauses, "graphite.metric : "+kqlQuote(p))
		}
	}
	warnings := []models.Warning{manualReview(req, "was reduced to its series paths")}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	q := strings.Join(clauses, " or ")
	if len(clauses) > 1 {
		q = "(" + q + ")"
	}
	return Result{Query: q, Language: models.LanguageKQL, Translated: true, Fields: []string{"graphite.metric"}}, warnings
}
