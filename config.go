package letsearch

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const configFile = "config.json"

// CollectionConfig is the persisted sidecar describing a collection. It is
// written once at creation and re-read on load; on disk it matches the
// collection's in-memory state at rest.
type CollectionConfig struct {
	Name         string   `json:"name"`
	ModelName    string   `json:"model_name"`
	ModelVariant string   `json:"model_variant"`
	IndexColumns []string `json:"index_columns"`
	// DBPath and IndexDir are relative to the collection directory.
	DBPath   string `json:"db_path"`
	IndexDir string `json:"index_dir"`
	// RemoteURI, when non-empty, names a blob store ("file://..." or
	// "s3://bucket/prefix") that receives a copy of the collection's
	// persisted files after every create and index save.
	RemoteURI string `json:"remote_uri,omitempty"`
}

// withDefaults fills in the relative paths a caller may omit.
func (c CollectionConfig) withDefaults() CollectionConfig {
	if c.DBPath == "" {
		c.DBPath = "data.db"
	}
	if c.IndexDir == "" {
		c.IndexDir = "index"
	}
	return c
}

func writeConfig(dir string, cfg CollectionConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return newErr("Collection.writeConfig", KindIO, err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), raw, 0o644); err != nil {
		return newErr("Collection.writeConfig", KindIO, err)
	}
	return nil
}

func readConfig(dir string) (CollectionConfig, error) {
	raw, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return CollectionConfig{}, newErr("Collection.readConfig", KindUnknownCollection, err)
		}
		return CollectionConfig{}, newErr("Collection.readConfig", KindIO, err)
	}
	var cfg CollectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return CollectionConfig{}, newErr("Collection.readConfig", KindCorruptConfig, err)
	}
	return cfg.withDefaults(), nil
}
