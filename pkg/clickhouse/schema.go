package clickhouse

import "fmt"

// PanelSchema returns the DDL for the observation and score tables.
// ReplacingMergeTree keeps the latest version of a (cid, xcat, date) point;
// score rows are keyed by run as well so every run stays retrievable.
func PanelSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.panel_observations (
	cid        LowCardinality(String),
	xcat       LowCardinality(String),
	real_date  Date,
	value      Float64,
	ingested_at DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (xcat, cid, real_date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.panel_scores (
	cid        LowCardinality(String),
	xcat       LowCardinality(String),
	real_date  Date,
	value      Nullable(Float64),
	run_id     UUID,
	computed_at DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(computed_at)
ORDER BY (xcat, run_id, cid, real_date)`, database),
	}
}
