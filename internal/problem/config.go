package problem

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/trace"
)

// ConfigFileName is the configuration file looked up by default.
const ConfigFileName = ".zeroelim.yaml"

// Config holds the pipeline settings read from the configuration file.
type Config struct {
	EliminateDivMod bool        `yaml:"eliminate_div_mod"`
	Iterations      int         `yaml:"iterations"`
	PropagateOuter  bool        `yaml:"propagate_outer"`
	Trace           TraceConfig `yaml:"trace"`
	LogLevel        string      `yaml:"log_level"`
}

// TraceConfig is the window of trace steps logged at info level. An empty
// window defers to the ZEROELIM_TRACE_START and ZEROELIM_TRACE_END
// environment variables.
type TraceConfig struct {
	Start int64 `yaml:"start"`
	End   int64 `yaml:"end"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		EliminateDivMod: true,
		Iterations:      domain.DefaultIterations,
		LogLevel:        "info",
	}
}

// ParseConfigurationFile reads the configuration at path. Keys missing
// from the file keep their default value; an empty path yields the
// defaults.
func ParseConfigurationFile(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&config); err != nil {
		return config, errors.Wrapf(err, "decoding %s", path)
	}
	if config.Iterations < 0 {
		return config, errors.Errorf("%s: iterations must not be negative", path)
	}
	return config, nil
}

// WriteConfigurationFile stores config at path.
func WriteConfigurationFile(path string, config Config) error {
	d, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

// Options converts the configuration into pipeline options tracing to
// logger.
func (c Config) Options(logger *zap.Logger) (domain.Options, error) {
	opts := domain.Options{
		EliminateDivMod: c.EliminateDivMod,
		Iterations:      c.Iterations,
		PropagateOuter:  c.PropagateOuter,
	}
	if c.Trace.End > c.Trace.Start {
		opts.Tracer = trace.New(logger, c.Trace.Start, c.Trace.End)
		return opts, nil
	}
	tr, err := trace.FromEnv(logger)
	if err != nil {
		return opts, err
	}
	opts.Tracer = tr
	return opts, nil
}
