// Package letsearch is a self-contained vector search engine: it ingests
// structured documents (JSONL / Parquet, optionally resolved from a model
// hub), embeds designated text columns through a local model, builds one
// approximate-nearest-neighbor index per indexed column, persists
// everything to disk, and answers similarity queries.
//
// The CollectionRegistry is the sole external entry point. It owns the
// set of named Collections, routes imports, embeds, and searches to them,
// and enforces embedder sharing: two collections declaring the same
// (model path, variant) pair share one loaded embedder.
//
// # Quick start
//
//	reg := letsearch.NewCollectionRegistry(nil,
//	    letsearch.WithRoot("./data"),
//	    letsearch.WithLogLevel(slog.LevelInfo),
//	)
//	defer reg.Close()
//
//	ctx := context.Background()
//	_, err := reg.Create(ctx, letsearch.CollectionConfig{
//	    Name:         "articles",
//	    ModelName:    "hf://owner/model",
//	    ModelVariant: "f16",
//	    IndexColumns: []string{"text"},
//	}, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg.ImportJSONL(ctx, "articles", "./articles-*.jsonl")
//	reg.EmbedColumn(ctx, "articles", "text", 32, nil)
//	results, err := reg.Search(ctx, "articles", "text", "feline sounds", 5)
//
// # Concurrency
//
// Three layers of reader-writer locks guard shared state: the registry's
// collection map, each Collection, and each per-column VectorIndex.
// Searches take read locks only and run concurrently; imports and column
// embeds take a Collection's write lock and exclude everything else on
// that collection while unrelated collections keep serving.
//
// # On-disk layout
//
//	<root>/<name>/config.json
//	<root>/<name>/data.db
//	<root>/<name>/index/<column>/index.bin
//
// The columnar store links rows to vectors through a dense, monotonically
// assigned _key column; index files are written atomically and verified
// with a CRC32 checksum on load.
package letsearch
