package translate

import (
	"sort"
	"strings"

	"github.com/grindlemire/go-lucene"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// translateSearch carries Elasticsearch/OpenSearch queries through as Lucene,
// which Kibana executes natively. The expression is parsed only to confirm it
// is well formed and to collect the fields it touches.
func translateSearch(req Request) (Result, []models.Warning) {
	q := strings.TrimSpace(req.Expr)
	if q == "" || q == "*" {
		return Result{Query: req.Expr, Language: models.LanguageLucene, Translated: true}, nil
	}

	parsed, err := lucene.Parse(stripTemplateVars(q))
	if err != nil {
		return identity(req, models.LanguageLucene), []models.Warning{parseFailed(req, err)}
	}

	fields := map[string]struct{}{}
	collectLuceneFields(parsed, fields)

	return Result{
		Query:      req.Expr,
		Language:   models.LanguageLucene,
		Translated: true,
		Fields:     sortedKeys(fields),
	}, nil
}

// collectLuceneFields walks the go-lucene AST and records field names.
func collectLuceneFields(e *expr.Expression, out map[string]struct{}) {
	if e == nil {
		return
	}
	switch e.Op {
	case expr.Equals, expr.Like, expr.Range:
		if l, ok := e.Left.(*expr.Expression); ok && l.Op == expr.Literal {
			if col, ok := l.Left.(expr.Column); ok {
				out[string(col)] = struct{}{}
			}
		}
	}
	if l, ok := e.Left.(*expr.Expression); ok {
		collectLuceneFields(l, out)
	}
	if r, ok := e.Right.(*expr.Expression); ok {
		collectLuceneFields(r, out)
	}
}

// Grafana substitutes $var before the query reaches Elasticsearch; replace
// references with a plain token so the syntax check sees a valid term.
func stripTemplateVars(q string) string {
	return templateVarRe.ReplaceAllStringFunc(q, func(m string) string {
		return "templatevar"
	})
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
