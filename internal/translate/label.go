package translate

import (
	"regexp"
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
)

var (
	// {{field}}, {{ field }}, {{term field}}
	mustacheRe = regexp.MustCompile(`\{\{\s*(?:term\s+)?([A-Za-z0-9_.@\-]+)\s*\}\}`)
	// InfluxDB alias forms: $tag_host, [[tag_host]]
	influxTagRe     = regexp.MustCompile(`\$tag_([A-Za-z0-9_]+)`)
	influxBracketRe = regexp.MustCompile(`\[\[tag_([A-Za-z0-9_]+)\]\]`)

	templateVarRe = regexp.MustCompile(`\$\{?[A-Za-z_][A-Za-z0-9_]*(?::[a-z]+)?\}?|\[\[[A-Za-z_][A-Za-z0-9_]*\]\]`)
)

// ConvertLabelTemplate rewrites a Grafana display-label template into Kibana's
// {field} interpolation. Each source token maps to exactly one target token.
// A template with stray or unbalanced braces is returned unchanged with a
// warning, since the target would read those braces as tokens.
func ConvertLabelTemplate(tmpl, path string) (string, []models.Warning) {
	if tmpl == "" {
		return "", nil
	}

	remainder := mustacheRe.ReplaceAllString(tmpl, "")
	if strings.ContainsAny(remainder, "{}") {
		return tmpl, []models.Warning{
			models.NewWarning(models.WarnLabelTemplate, path,
				"label template %q has unbalanced braces; kept verbatim", tmpl),
		}
	}

	out := mustacheRe.ReplaceAllString(tmpl, "{$1}")
	out = influxBracketRe.ReplaceAllString(out, "{$1}")
	out = influxTagRe.ReplaceAllString(out, "{$1}")
	return out, nil
}
