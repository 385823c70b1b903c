package letsearch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/altaidevorg/letsearch/blobstore"
	"github.com/altaidevorg/letsearch/blobstore/s3"
)

// openBlobStore maps a remote URI onto a BlobStore implementation:
// "file:///path" for a local mirror directory, "s3://bucket/prefix" for S3.
func openBlobStore(ctx context.Context, uri string) (blobstore.BlobStore, error) {
	const op = "Collection.backup"

	u, err := url.Parse(uri)
	if err != nil {
		return nil, newErr(op, KindBadRequest, err)
	}
	switch u.Scheme {
	case "file":
		return blobstore.NewLocalStore(u.Path), nil
	case "s3":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, newErr(op, KindIO, err)
		}
		return s3.NewStore(awss3.NewFromConfig(cfg), u.Host, strings.TrimPrefix(u.Path, "/")), nil
	default:
		return nil, newErr(op, KindBadRequest, fmt.Errorf("unsupported remote uri scheme %q", u.Scheme))
	}
}

// pushBackup copies the collection's persisted files (config.json, the
// database, and every index.bin) to the configured remote store,
// zstd-compressed. Blob names are relative to the collection directory,
// under the collection's name, so one store can hold many collections.
func (c *Collection) pushBackup(ctx context.Context) error {
	const op = "Collection.backup"

	store, err := openBlobStore(ctx, c.cfg.RemoteURI)
	if err != nil {
		return err
	}
	if err := c.store.Checkpoint(ctx); err != nil {
		return newErr(op, KindStorage, err)
	}

	files := []string{configFile, c.cfg.DBPath}
	c.idxMu.RLock()
	for column := range c.indexes {
		files = append(files, filepath.Join(c.cfg.IndexDir, column, "index.bin"))
	}
	c.idxMu.RUnlock()

	for _, rel := range files {
		local := filepath.Join(c.dir, rel)
		if _, err := os.Stat(local); err != nil {
			continue
		}
		if err := pushFile(ctx, store, local, filepath.ToSlash(filepath.Join(c.cfg.Name, rel))+".zst"); err != nil {
			return newErr(op, KindIO, err)
		}
	}
	c.logger.InfoContext(ctx, "backup pushed", "remote", c.cfg.RemoteURI, "files", len(files))
	return nil
}

func pushFile(ctx context.Context, store blobstore.BlobStore, local, name string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		w.Close()
		return err
	}
	if _, err := io.Copy(zw, f); err != nil {
		zw.Close()
		w.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
