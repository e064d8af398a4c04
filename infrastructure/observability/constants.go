package observability

// Metric name prefixes
const (
	MetricPrefix = "wagerbook"
)

// Metric names
const (
	// Wager metrics
	WagerDisputesTotal    = MetricPrefix + ".wagers.disputes_total"
	WagerSettlementsTotal = MetricPrefix + ".wagers.settlements_total"
	WagerSettledVolume    = MetricPrefix + ".wagers.settled_volume"
	WagerPlatformFees     = MetricPrefix + ".wagers.platform_fees"

	// Rail metrics
	ReconciliationsTotal = MetricPrefix + ".rails.reconciliations_total"
)

// Label keys
const (
	LabelCategory = "category"
	LabelReason   = "reason"
	LabelRail     = "rail"
	LabelOutcome  = "outcome"
)

// Exporter types
const (
	ExporterConsole = "console"
	ExporterOTLP    = "otlp"
	ExporterNone    = "none"
)
