package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "quotechat", cfg.MongoDB)
	assert.Empty(t, cfg.MongoURI)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "quotechat-attachments", cfg.S3Bucket)
	assert.False(t, cfg.S3UseSSL)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("WRITE_TIMEOUT", "30s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	// Public endpoint falls back to the private one.
	assert.Equal(t, "http://minio:9000", cfg.S3PublicEndpoint)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("WRITE_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad boolean", func(t *testing.T) {
		t.Setenv("S3_USE_SSL", "maybe")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"1", true}, {"true", true}, {"YES", true}, {"on", true},
		{"0", false}, {"false", false}, {"No", false}, {"off", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("FLAG", tt.raw)
			got, err := parseBoolEnv("FLAG", !tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
