package translate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/platformbuilds/dashbridge/internal/models"
)

// Cloud targets have no query string; the validator renders their structured
// fields as space separated key="value" pairs, e.g.
//
//	namespace="AWS/EC2" metric="CPUUtilization" region="us-east-1" dim.InstanceId="i-123"
var cloudPairRe = regexp.MustCompile(`([A-Za-z0-9_.\-/]+)="((?:[^"\\]|\\.)*)"`)

var cloudPrefixes = map[Dialect]string{
	DialectCloudWatch:   "aws",
	DialectAzureMonitor: "azure",
	DialectStackdriver:  "gcp",
}

// translateCloud maps namespace, metric, region and dimensions onto the
// field layout of the Elastic cloud integrations.
func translateCloud(req Request) (Result, []models.Warning) {
	pairs := cloudPairRe.FindAllStringSubmatch(req.Expr, -1)
	if len(pairs) == 0 {
		return identity(req, models.LanguageKQL), []models.Warning{
			manualReview(req, "has no metric dimensions to lift and was carried through"),
		}
	}

	prefix := "cloud"
	if p, ok := cloudPrefixes[req.Dialect]; ok {
		prefix = p
	}

	var clauses, fields, dims, dropped []string
	dimValues := map[string]string{}
	for _, p := range pairs {
		key, val := p[1], p[2]
		if val == "" || val == "*" {
			continue
		}
		if hasTemplateVar(val) {
			dropped = append(dropped, p[0])
			continue
		}
		var field string
		switch key {
		case "namespace":
			field = prefix + ".namespace"
		case "metric":
			field = prefix + ".metric"
		case "region":
			field = "cloud.region"
		case "resource":
			field = prefix + ".resource"
		default:
			if name, ok := strings.CutPrefix(key, "dim."); ok && name != "" {
				dims = append(dims, name)
				dimValues[name] = val
			}
			continue
		}
		clauses = append(clauses, field+" : "+kqlQuote(val))
		fields = append(fields, field)
	}
	sort.Strings(dims)
	for _, d := range dims {
		field := prefix + ".dimensions." + d
		clauses = append(clauses, field+" : "+kqlQuote(dimValues[d]))
		fields = append(fields, field)
	}

	warnings := []models.Warning{manualReview(req, "was reduced to its metric dimensions")}
	if len(dropped) > 0 {
		warnings = append(warnings, models.NewWarning(models.WarnManualReview, req.Path,
			"dimensions bound to dashboard variables were dropped: %v", dropped))
	}
	if len(clauses) == 0 {
		return identity(req, models.LanguageKQL), warnings
	}
	return Result{Query: joinAnd(clauses), Language: models.LanguageKQL, Translated: true, Fields: fields}, warnings
}
