package translate

import (
	"regexp"
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
)

var (
	sqlWhereRe = regexp.MustCompile(`(?is)\bWHERE\s+(.+?)(?:\bGROUP\s+BY\b|\bORDER\s+BY\b|\bLIMIT\b|\bHAVING\b|;|$)`)
	sqlAndRe   = regexp.MustCompile(`(?i)\s+AND\s+`)
	sqlEqRe    = regexp.MustCompile(`(?is)^\(?\s*[` + "`" + `"\[]?([A-Za-z_][A-Za-z0-9_.]*)[` + "`" + `"\]]?\s*(=|!=|<>)\s*('(?:[^']|'')*'|-?[0-9]+(?:\.[0-9]+)?)\s*\)?$`)
	sqlInRe    = regexp.MustCompile(`(?is)^\(?\s*[` + "`" + `"\[]?([A-Za-z_][A-Za-z0-9_.]*)[` + "`" + `"\]]?\s+(NOT\s+)?IN\s*\(([^)]*)\)\s*\)?$`)
	// Grafana SQL macros: $__timeFilter(col), $__unixEpochFilter(col), ...
	sqlMacroRe = regexp.MustCompile(`^\$__[A-Za-z]+\(.*\)$`)
)

// translateRelational lifts simple equality and IN predicates from the WHERE
// clause of a SQL panel query. Anything involving OR, functions or joins is
// reported and skipped.
func translateRelational(req Request) (Result, []models.Warning) {
	w := sqlWhereRe.FindStringSubmatch(req.Expr)
	if w == nil {
		return identity(req, models.LanguageKQL), []models.Warning{
			manualReview(req, "has no WHERE clause to lift and was carried through"),
		}
	}

	var clauses, fields, dropped []string
	for _, pred := range sqlAndRe.Split(strings.TrimSpace(w[1]), -1) {
		pred = strings.TrimSpace(pred)
		if pred == "" || sqlMacroRe.MatchString(pred) {
			continue
		}
		if hasTemplateVar(pred) {
			dropped = append(dropped, pred)
			continue
		}
		if m := sqlEqRe.FindStringSubmatch(pred); m != nil {
			col, op, val := m[1], m[2], sqlValue(m[3])
			clause := col + " : " + val
			if op != "=" {
				clause = "not " + clause
			}
			clauses = append(clauses, clause)
			fields = append(fields, col)
			continue
		}
		if m := sqlInRe.FindStringSubmatch(pred); m != nil {
			col := m[1]
			var vals []string
			for _, v := range strings.Split(m[3], ",") {
				if v = strings.TrimSpace(v); v != "" {
					vals = append(vals, sqlValue(v))
				}
			}
			if len(vals) == 0 {
				dropped = append(dropped, pred)
				continue
			}
			clause := col + " : (" + strings.Join(vals, " or ") + ")"
			if m[2] != "" {
				clause = "not " + clause
			}
			clauses = append(clauses, clause)
			fields = append(fields, col)
			continue
		}
		dropped = append(dropped, pred)
	}

	warnings := []models.Warning{manualReview(req, "was reduced to its WHERE predicates")}
	if len(dropped) > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnManualReview, req.Path,
			"predicates not expressible in KQL were dropped: %s", strings.Join(dropped, "; ")))
	}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	return Result{Query: joinAnd(clauses), Language: models.LanguageKQL, Translated: true, Fields: fields}, warnings
}

// sqlValue turns a SQL literal into a KQL value.
func sqlValue(lit string) string {
	if strings.HasPrefix(lit, "'") {
		return kqlQuote(strings.ReplaceAll(strings.Trim(lit, "'"), "''", "'"))
	}
	return lit
}
