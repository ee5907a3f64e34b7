package problem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseConfigurationFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Config
		wantErr bool
	}{
		{
			name:    "defaults kept",
			content: "iterations: 3\n",
			want:    Config{EliminateDivMod: true, Iterations: 3, LogLevel: "info"},
		},
		{
			name:    "all keys",
			content: "eliminate_div_mod: false\niterations: 1\npropagate_outer: true\ntrace: {start: 5, end: 9}\nlog_level: debug\n",
			want: Config{
				Iterations:     1,
				PropagateOuter: true,
				Trace:          TraceConfig{Start: 5, End: 9},
				LogLevel:       "debug",
			},
		},
		{name: "negative iterations", content: "iterations: -1\n", wantErr: true},
		{name: "malformed", content: "iterations: [\n", wantErr: true},
	}
	for i, tt := range tests {
		path := filepath.Join(dir, filepath.Base(t.Name())+string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseConfigurationFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := ParseConfigurationFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), got)

	_, err = ParseConfigurationFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteConfigurationFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	want := DefaultConfig()
	want.Trace = TraceConfig{Start: 1, End: 2}
	require.NoError(t, WriteConfigurationFile(path, want))

	got, err := ParseConfigurationFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()
	c := DefaultConfig()
	c.Trace = TraceConfig{Start: 0, End: 10}
	opts, err := c.Options(zap.NewNop())
	require.NoError(t, err)
	assert.True(t, opts.EliminateDivMod)
	assert.Equal(t, c.Iterations, opts.Iterations)
	require.NotNil(t, opts.Tracer)

	opts.Tracer.Log("step")
	assert.Equal(t, int64(1), opts.Tracer.Step())
}
