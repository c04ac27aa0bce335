// Package config resolves runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
)

// Config holds the settings shared by all commands.
//
// Environment variables:
//
//	QDRANT_HOST     Qdrant hostname (default: localhost)
//	QDRANT_PORT     Qdrant gRPC port (default: 6334)
//	DATA_DIR        SQLite data directory (default: ~/.studyrag/data)
//	GCS_BUCKET      material bucket name; when set, materials come from GCS
//	MATERIAL_DIR    local material directory, used when GCS_BUCKET is unset
//	OPENAI_API_KEY  OpenAI API key for embeddings and answers (required)
type Config struct {
	QdrantHost  string
	QdrantPort  int
	DataDir     string
	GCSBucket   string
	MaterialDir string
}

// Load reads configuration from the environment. Callers load .env files
// beforehand if they want local overrides.
func Load() (*Config, error) {
	cfg := &Config{
		QdrantHost:  getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:  getEnvInt("QDRANT_PORT", 6334),
		DataDir:     getEnv("DATA_DIR", ""),
		GCSBucket:   getEnv("GCS_BUCKET", ""),
		MaterialDir: getEnv("MATERIAL_DIR", ""),
	}

	if cfg.GCSBucket == "" && cfg.MaterialDir == "" {
		return nil, fmt.Errorf("either GCS_BUCKET or MATERIAL_DIR must be set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
