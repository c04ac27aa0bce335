package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QDRANT_HOST", "")
	t.Setenv("QDRANT_PORT", "")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("MATERIAL_DIR", "/srv/materials")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.QdrantHost)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, "/srv/materials", cfg.MaterialDir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7334")
	t.Setenv("GCS_BUCKET", "school-materials")
	t.Setenv("MATERIAL_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", cfg.QdrantHost)
	assert.Equal(t, 7334, cfg.QdrantPort)
	assert.Equal(t, "school-materials", cfg.GCSBucket)
}

func TestLoad_RequiresMaterialSource(t *testing.T) {
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("MATERIAL_DIR", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidPortFallsBack(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-port")
	t.Setenv("MATERIAL_DIR", "/srv/materials")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6334, cfg.QdrantPort)
}
