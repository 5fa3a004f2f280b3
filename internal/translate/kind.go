package translate

import "strings"

// Kind is the closed set of datasource families the translator dispatches on.
type Kind int

const (
	KindUnknown Kind = iota
	KindSearch
	KindMetrics
	KindRelational
	KindCloud
)

func (k Kind) String() string {
	switch k {
	case KindSearch:
		return "search"
	case KindMetrics:
		return "metrics"
	case KindRelational:
		return "relational"
	case KindCloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// Dialect names the concrete query language inside a Kind.
type Dialect string

const (
	DialectElasticsearch Dialect = "elasticsearch"
	DialectOpenSearch    Dialect = "opensearch"
	DialectPrometheus    Dialect = "prometheus"
	DialectLoki          Dialect = "loki"
	DialectInfluxDB      Dialect = "influxdb"
	DialectGraphite      Dialect = "graphite"
	DialectMySQL         Dialect = "mysql"
	DialectPostgres      Dialect = "postgres"
	DialectMSSQL         Dialect = "mssql"
	DialectCloudWatch    Dialect = "cloudwatch"
	DialectAzureMonitor  Dialect = "azuremonitor"
	DialectStackdriver   Dialect = "stackdriver"
	DialectNone          Dialect = ""
)

type datasourceEntry struct {
	needle  string
	dialect Dialect
	kind    Kind
}

// Ordered: exact plugin ids first, then name fragments. The first entry whose
// needle equals, or failing that is contained in, the reference wins.
var datasourceTable = []datasourceEntry{
	{"elasticsearch", DialectElasticsearch, KindSearch},
	{"grafana-opensearch-datasource", DialectOpenSearch, KindSearch},
	{"opensearch", DialectOpenSearch, KindSearch},
	{"prometheus", DialectPrometheus, KindMetrics},
	{"loki", DialectLoki, KindMetrics},
	{"influxdb", DialectInfluxDB, KindMetrics},
	{"influx", DialectInfluxDB, KindMetrics},
	{"graphite", DialectGraphite, KindMetrics},
	{"mysql", DialectMySQL, KindRelational},
	{"grafana-postgresql-datasource", DialectPostgres, KindRelational},
	{"postgres", DialectPostgres, KindRelational},
	{"mssql", DialectMSSQL, KindRelational},
	{"cloudwatch", DialectCloudWatch, KindCloud},
	{"grafana-azure-monitor-datasource", DialectAzureMonitor, KindCloud},
	{"azuremonitor", DialectAzureMonitor, KindCloud},
	{"azure", DialectAzureMonitor, KindCloud},
	{"stackdriver", DialectStackdriver, KindCloud},
	{"googlecloud", DialectStackdriver, KindCloud},
}

// Resolve maps a datasource type, plugin id or legacy display name such as
// "${DS_PROMETHEUS}" onto a Kind and Dialect.
func Resolve(ref string) (Kind, Dialect) {
	r := strings.ToLower(strings.TrimSpace(ref))
	if r == "" {
		return KindUnknown, DialectNone
	}
	for _, e := range datasourceTable {
		if r == e.needle {
			return e.kind, e.dialect
		}
	}
	for _, e := range datasourceTable {
		if strings.Contains(r, e.needle) {
			return e.kind, e.dialect
		}
	}
	return KindUnknown, DialectNone
}

// SupportedDatasources lists the exact ids Resolve recognises.
func SupportedDatasources() []string {
	out := make([]string, 0, len(datasourceTable))
	for _, e := range datasourceTable {
		out = append(out, e.needle)
	}
	return out
}
