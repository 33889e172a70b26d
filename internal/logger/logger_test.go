package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		level    string
		encoding string
		wantErr  bool
	}{
		{name: "dev console", env: "dev", level: "debug"},
		{name: "prod json", env: "prod", level: "info"},
		{name: "explicit json in dev", env: "dev", level: "warn", encoding: "json"},
		{name: "bad level", env: "dev", level: "loud", wantErr: true},
		{name: "bad encoding", env: "dev", level: "info", encoding: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, err := New(tt.env, tt.level, tt.encoding, "catalog", "test")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, lg)
		})
	}
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.log")

	lg, err := New("prod", "info", "", "catalog", "test", WithRotatingFile(path, 1, 1, 1))
	require.NoError(t, err)

	lg.Info("hello")
	_ = lg.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
