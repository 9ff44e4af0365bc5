package storage

import "fmt"

func blockTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	updated_date_time DateTime,
	transaction_hash String,
	frame_id UInt32,
	frame_path Array(UInt32),
	call_type LowCardinality(String),
	address String,
	block_start UInt32,
	block_end UInt32,
	instructions UInt32,
	terminator LowCardinality(String),
	tag LowCardinality(String),
	executed Bool,
	placeholder Bool,
	meta_network_name LowCardinality(String)
) ENGINE = ReplacingMergeTree(updated_date_time)
ORDER BY (meta_network_name, transaction_hash, frame_id, block_start)`, table)
}

func edgeTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	updated_date_time DateTime,
	transaction_hash String,
	from_frame UInt32,
	from_block UInt32,
	to_frame UInt32,
	to_block UInt32,
	kind LowCardinality(String),
	call_type LowCardinality(String),
	executed Bool,
	meta_network_name LowCardinality(String)
) ENGINE = ReplacingMergeTree(updated_date_time)
ORDER BY (meta_network_name, transaction_hash, from_frame, from_block, to_frame, to_block, kind)`, table)
}
