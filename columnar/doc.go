// Package columnar is the row store behind a collection: one SQLite table
// per collection, bulk-loaded from JSONL or Parquet files, with a dense
// monotonically assigned _key column linking each row to its vectors in
// every VectorIndex of the collection. Imports are transactional; batch
// reads are ordered by _key so the embed pipeline sees a stable sequence.
package columnar
