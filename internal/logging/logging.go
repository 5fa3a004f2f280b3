package logging

import (
	corelogger "github.com/platformbuilds/dashbridge/pkg/logger"
	"go.uber.org/zap"
)

// Logger is the logging surface used by internal packages. Depending on this
// rather than pkg/logger keeps the engine packages free of the zap setup in
// cmd/.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// Nop returns a Logger that drops every record.
func Nop() Logger {
	return &zapAdapter{logger: zap.NewNop().Sugar()}
}

// FromCoreLogger wraps the project core logger. A nil core yields Nop.
func FromCoreLogger(core corelogger.Logger) Logger {
	if core == nil {
		return Nop()
	}
	return &coreAdapter{core: core}
}

// With returns a child logger carrying the given key/value pairs when the
// underlying implementation supports it; otherwise the pairs are prepended
// to every call.
func With(l Logger, fields ...interface{}) Logger {
	switch v := l.(type) {
	case *coreAdapter:
		return &coreAdapter{core: v.core.With(fields...)}
	case *zapAdapter:
		return &zapAdapter{logger: v.logger.With(fields...)}
	default:
		return &prefixed{inner: l, fields: fields}
	}
}

// ExtractZapLogger returns the *zap.Logger behind l, or a no-op logger.
func ExtractZapLogger(v interface{}) *zap.Logger {
	if zl, ok := v.(interface{ ZapLogger() *zap.Logger }); ok {
		return zl.ZapLogger()
	}
	return zap.NewNop()
}

type coreAdapter struct {
	core corelogger.Logger
}

func (c *coreAdapter) Info(msg string, fields ...interface{})  { c.core.Info(msg, fields...) }
func (c *coreAdapter) Error(msg string, fields ...interface{}) { c.core.Error(msg, fields...) }
func (c *coreAdapter) Warn(msg string, fields ...interface{})  { c.core.Warn(msg, fields...) }
func (c *coreAdapter) Debug(msg string, fields ...interface{}) { c.core.Debug(msg, fields...) }

func (c *coreAdapter) ZapLogger() *zap.Logger {
	if zl, ok := c.core.(interface{ ZapLogger() *zap.Logger }); ok {
		return zl.ZapLogger()
	}
	return zap.NewNop()
}

type zapAdapter struct {
	logger *zap.SugaredLogger
}

func (z *zapAdapter) Info(msg string, fields ...interface{})  { z.logger.Infow(msg, fields...) }
func (z *zapAdapter) Error(msg string, fields ...interface{}) { z.logger.Errorw(msg, fields...) }
func (z *zapAdapter) Warn(msg string, fields ...interface{})  { z.logger.Warnw(msg, fields...) }
func (z *zapAdapter) Debug(msg string, fields ...interface{}) { z.logger.Debugw(msg, fields...) }
func (z *zapAdapter) ZapLogger() *zap.Logger                  { return z.logger.Desugar() }

type prefixed struct {
	inner  Logger
	fields []interface{}
}

func (p *prefixed) merge(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(p.fields)+len(fields))
	out = append(out, p.fields...)
	return append(out, fields...)
}

func (p *prefixed) Info(msg string, fields ...interface{})  { p.inner.Info(msg, p.merge(fields)...) }
func (p *prefixed) Error(msg string, fields ...interface{}) { p.inner.Error(msg, p.merge(fields)...) }
func (p *prefixed) Warn(msg string, fields ...interface{})  { p.inner.Warn(msg, p.merge(fields)...) }
func (p *prefixed) Debug(msg string, fields ...interface{}) { p.inner.Debug(msg, p.merge(fields)...) }
