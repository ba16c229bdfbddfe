package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

type serdeSection struct {
	Format   string `mapstructure:"format"`
	MaxDepth int    `mapstructure:"max_depth"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "serde:\n  format: legacy\n  max_depth: 64\n")
	cfg := New()
	require.NoError(t, cfg.LoadFile(path))

	var sec serdeSection
	require.NoError(t, cfg.UnmarshalKey("serde", &sec))
	assert.Equal(t, serdeSection{Format: "legacy", MaxDepth: 64}, sec)
	assert.True(t, cfg.IsSet("serde.format"))
	assert.False(t, cfg.IsSet("codec"))
}

func TestLoadJSONWithEnv(t *testing.T) {
	path := writeFile(t, "config.json", `{"serde": {"format": "current"}}`)
	t.Setenv("SERDETEST_SERDE_FORMAT", "legacy")

	cfg := New()
	cfg.BindEnv("SERDETEST")
	cfg.SetDefault("serde.max_depth", 100)
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, "legacy", cfg.GetString("serde.format"))

	var all struct {
		Serde serdeSection `mapstructure:"serde"`
	}
	require.NoError(t, cfg.Unmarshal(&all))
	assert.Equal(t, 100, all.Serde.MaxDepth)
}

func TestLoadErrors(t *testing.T) {
	cfg := New()
	assert.ErrorIs(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")), merr.ErrIoFailed)
	assert.ErrorIs(t, cfg.LoadFile("config.ini"), merr.ErrParameterInvalid)
}
