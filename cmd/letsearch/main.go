// Command letsearch indexes structured documents into vector-searchable
// collections and serves similarity queries over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/altaidevorg/letsearch"
	"github.com/altaidevorg/letsearch/httpapi"
	"github.com/altaidevorg/letsearch/modelhub"
)

// tokenEnvVar is the hub-authentication fallback; the --hf-token flag
// takes precedence.
const tokenEnvVar = "LETSEARCH_HF_TOKEN"

var (
	hfToken string
	verbose bool

	collectionName string
	files          string
	model          string
	variant        string
	indexColumns   []string
	batchSize      int
	overwrite      bool
	backend        string
	dataRoot       string

	host string
	port int
)

var rootCmd = &cobra.Command{
	Use:   "letsearch",
	Short: "Embed, index, and search your documents",
	Long: `letsearch ingests JSONL/Parquet files into named collections, embeds
designated text columns through a local model, builds per-column vector
indices, and serves similarity queries over HTTP.`,
	SilenceUsage: true,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create a collection, import files, and build its indices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an existing collection over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List letsearch-compatible models on the hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListModels(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hfToken, "hf-token", "", "hub authentication token (falls back to "+tokenEnvVar+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "directory collections live under (default ~/.letsearch/collections)")

	indexCmd.Flags().StringVar(&collectionName, "collection-name", "", "name of the collection to create")
	indexCmd.Flags().StringVar(&files, "files", "", "glob of JSONL or Parquet files to import")
	indexCmd.Flags().StringVar(&model, "model", "", "model path or hf://owner/repo reference")
	indexCmd.Flags().StringVar(&variant, "variant", "f32", "model variant")
	indexCmd.Flags().StringSliceVar(&indexColumns, "index-columns", nil, "columns to embed and index")
	indexCmd.Flags().IntVar(&batchSize, "batch-size", 32, "embedding batch size")
	indexCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing collection of the same name")
	indexCmd.Flags().StringVar(&backend, "backend", "tfidf", "embedder backend (tfidf or onnx)")
	indexCmd.MarkFlagRequired("collection-name")
	indexCmd.MarkFlagRequired("files")
	indexCmd.MarkFlagRequired("index-columns")

	serveCmd.Flags().StringVar(&collectionName, "collection-name", "", "name of the collection to serve")
	serveCmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen address")
	serveCmd.Flags().IntVarP(&port, "port", "p", 7898, "listen port")
	serveCmd.Flags().StringVar(&backend, "backend", "tfidf", "embedder backend (tfidf or onnx)")
	serveCmd.MarkFlagRequired("collection-name")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listModelsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func token() string {
	if hfToken != "" {
		return hfToken
	}
	return os.Getenv(tokenEnvVar)
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func newRegistry() *letsearch.CollectionRegistry {
	return letsearch.NewCollectionRegistry(nil,
		letsearch.WithRoot(dataRoot),
		letsearch.WithBackend(backend),
		letsearch.WithToken(token()),
		letsearch.WithLogger(letsearch.NewTextLogger(logLevel())),
	)
}

func runIndex(ctx context.Context) error {
	reg := newRegistry()
	defer reg.Close()

	cfg := letsearch.CollectionConfig{
		Name:         collectionName,
		ModelName:    model,
		ModelVariant: variant,
		IndexColumns: indexColumns,
	}
	if _, err := reg.Create(ctx, cfg, overwrite); err != nil {
		return err
	}

	importFn := reg.ImportJSONL
	if isParquet(files) {
		importFn = reg.ImportParquet
	}
	rows, err := importFn(ctx, collectionName, files)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d rows into %s\n", rows, collectionName)

	for _, column := range indexColumns {
		fmt.Fprintf(os.Stderr, "embedding column %s\n", column)
		err := reg.EmbedColumn(ctx, collectionName, column, batchSize, func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r  %d/%d", done, total)
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "collection %s ready\n", collectionName)
	return nil
}

func isParquet(pattern string) bool {
	for i := len(pattern) - 1; i >= 0; i-- {
		if pattern[i] == '.' {
			return pattern[i+1:] == "parquet"
		}
	}
	return false
}

func runServe(ctx context.Context) error {
	reg := newRegistry()
	defer reg.Close()

	if _, err := reg.Load(ctx, collectionName); err != nil {
		return err
	}

	logger := letsearch.NewTextLogger(logLevel())
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           httpapi.New(reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "collection", collectionName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runListModels(ctx context.Context) error {
	hub := modelhub.NewHub()
	models, err := hub.List(ctx, token())
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("no letsearch-compatible models found")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%s\tdownloads=%d\tlikes=%d\n", m.ModelID, m.Downloads, m.Likes)
	}
	return nil
}
