package embeddedmqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newSlogLogger routes the broker's slog output into zap.
func newSlogLogger(logger *zap.Logger) *slog.Logger {
	return slog.New(&zapHandler{logger: logger})
}

type zapHandler struct {
	logger *zap.Logger
	fields []zap.Field
	group  string
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(zapLevel(level))
}

func (h *zapHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.fields)+record.NumAttrs())
	fields = append(fields, h.fields...)
	var cause error
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			cause = attrError(attr)
		}
		fields = append(fields, h.field(attr))
		return true
	})

	// Clients hanging up surface as EOF read errors.
	if cause != nil && (errors.Is(cause, io.EOF) || strings.HasSuffix(cause.Error(), "EOF")) {
		h.logger.Debug("embedded mqtt client disconnected", fields...)
		return nil
	}
	if ce := h.logger.Check(zapLevel(record.Level), record.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zap.Field, 0, len(h.fields)+len(attrs))
	fields = append(fields, h.fields...)
	for _, attr := range attrs {
		fields = append(fields, h.field(attr))
	}
	return &zapHandler{logger: h.logger, fields: fields, group: h.group}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &zapHandler{logger: h.logger, fields: h.fields, group: group}
}

func (h *zapHandler) field(attr slog.Attr) zap.Field {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	v := attr.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return zap.String(key, v.String())
	case slog.KindInt64:
		return zap.Int64(key, v.Int64())
	case slog.KindUint64:
		return zap.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return zap.Float64(key, v.Float64())
	case slog.KindBool:
		return zap.Bool(key, v.Bool())
	case slog.KindDuration:
		return zap.Duration(key, v.Duration())
	case slog.KindTime:
		return zap.Time(key, v.Time())
	default:
		return zap.Any(key, v.Any())
	}
}

func attrError(attr slog.Attr) error {
	switch attr.Value.Kind() {
	case slog.KindString:
		return errors.New(attr.Value.String())
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return err
		}
	}
	return nil
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
