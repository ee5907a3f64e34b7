// Package trace records the steps of the zero elimination passes through
// zap. Every event increments a shared step counter; events whose step lies
// inside the verbose window are logged at info level, all others at debug
// level.
package trace

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvStart names the first verbose step.
	EnvStart = "ZEROELIM_TRACE_START"
	// EnvEnd names the step after the last verbose one.
	EnvEnd = "ZEROELIM_TRACE_END"
)

// Tracer is a scope of a trace. A nil *Tracer discards everything.
type Tracer struct {
	logger *zap.Logger
	depth  int
	step   *atomic.Int64
	start  int64
	end    int64
}

// New creates a tracer that is verbose for steps in [start, end).
func New(logger *zap.Logger, start, end int64) *Tracer {
	return &Tracer{logger: logger, step: new(atomic.Int64), start: start, end: end}
}

// Nop returns a tracer that logs nothing.
func Nop() *Tracer {
	return New(zap.NewNop(), 0, 0)
}

// FromEnv creates a tracer whose verbose window is read from EnvStart and
// EnvEnd. A missing start means 0 and a missing end means unbounded; with
// neither set the window is empty.
func FromEnv(logger *zap.Logger) (*Tracer, error) {
	startStr, hasStart := os.LookupEnv(EnvStart)
	endStr, hasEnd := os.LookupEnv(EnvEnd)
	if !hasStart && !hasEnd {
		return New(logger, 0, 0), nil
	}
	start, end := int64(0), int64(math.MaxInt64)
	var err error
	if hasStart {
		if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvStart)
		}
	}
	if hasEnd {
		if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvEnd)
		}
	}
	return New(logger, start, end), nil
}

// Enter opens a nested scope named name and logs its arguments.
func (t *Tracer) Enter(name string, fields ...zap.Field) *Tracer {
	if t == nil {
		return nil
	}
	child := *t
	child.depth++
	child.logger = t.logger.With(zap.String("scope", name))
	child.Log("enter", fields...)
	return &child
}

// Log records a step.
func (t *Tracer) Log(msg string, fields ...zap.Field) {
	if t == nil {
		return
	}
	t.write(t.level(), msg, fields)
}

// Result records the value a scope returns.
func (t *Tracer) Result(value fmt.Stringer) {
	t.Log("result", zap.Stringer("value", value))
}

// Warn records a skipped optimization. Warnings ignore the verbose window.
func (t *Tracer) Warn(msg string, fields ...zap.Field) {
	if t == nil {
		return
	}
	t.step.Add(1)
	t.write(zapcore.WarnLevel, msg, fields)
}

// Step returns the number of events recorded so far.
func (t *Tracer) Step() int64 {
	if t == nil {
		return 0
	}
	return t.step.Load()
}

func (t *Tracer) level() zapcore.Level {
	s := t.step.Add(1) - 1
	if s >= t.start && s < t.end {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func (t *Tracer) write(lvl zapcore.Level, msg string, fields []zap.Field) {
	if ce := t.logger.Check(lvl, msg); ce != nil {
		ce.Write(append(fields, zap.Int("depth", t.depth))...)
	}
}

// Exprs adapts a list of printable values to a zap field. The values are
// only printed when the entry is written.
func Exprs[T fmt.Stringer](key string, list []T) zap.Field {
	return zap.Array(key, stringers[T](list))
}

type stringers[T fmt.Stringer] []T

func (s stringers[T]) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, e := range s {
		enc.AppendString(e.String())
	}
	return nil
}
