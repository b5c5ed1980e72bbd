package logger

import (
	"context"
	"fmt"
	"strings"

	"fuzzforge/config"
	"fuzzforge/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerParams struct {
	fx.In
	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Telemetry telemetry.Telemetry `optional:"true"`
}

// NewLogger builds the process logger from the configured level. When
// telemetry is wired in, every entry is mirrored into the OTel log
// stream on top of the normal console output.
func NewLogger(p LoggerParams) *zap.Logger {
	loggerCtx, cancel := context.WithCancel(context.Background())
	p.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	level := parseLevel(p.AppConfig.LogLevel)

	var cfg zap.Config
	if level > zapcore.InfoLevel {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if p.Telemetry == nil {
		return mustBuild(cfg)
	}

	lg, err := cfg.Build(
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return &otelCore{
				Core:  core,
				telem: p.Telemetry,
				ctx:   loggerCtx,
			}
		}),
		zap.AddCaller(),
	)
	if err != nil {
		return mustBuild(cfg)
	}
	lg.Info("Logger with telemetry mirroring enabled")
	return lg
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func mustBuild(cfg zap.Config) *zap.Logger {
	lg, err := cfg.Build()
	if err != nil {
		// never run without a logger
		return zap.NewExample()
	}
	return lg
}

// otelCore decorates a zapcore.Core so each entry also lands in the
// OTel log stream, with zap fields carried over as attributes.
type otelCore struct {
	zapcore.Core
	telem telemetry.Telemetry
	ctx   context.Context
}

// With keeps the wrapper on child cores created by logger.With(...).
func (c *otelCore) With(fields []zapcore.Field) zapcore.Core {
	return &otelCore{Core: c.Core.With(fields), telem: c.telem, ctx: c.ctx}
}

// Check registers this core, not the inner one, on the CheckedEntry.
func (c *otelCore) Check(ent zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return checked.AddCore(ent, c)
	}
	return checked
}

func (c *otelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if err := c.Core.Write(ent, fields); err != nil {
		return err
	}

	rec := log.Record{}
	rec.SetTimestamp(ent.Time)
	rec.SetBody(log.StringValue(ent.Message))
	rec.SetSeverityText(ent.Level.String())
	rec.AddAttributes(log.KeyValueFromAttribute(
		attribute.String("fuzzforge.action.name", "campaign_log")))

	for _, f := range fields {
		rec.AddAttributes(log.KeyValueFromAttribute(fieldAttr(f)))
	}

	c.telem.GetLogger().Emit(c.ctx, rec)
	return nil
}

// fieldAttr converts one zap field into an OTel attribute, stringifying
// anything without a native representation.
func fieldAttr(f zapcore.Field) attribute.KeyValue {
	switch f.Type {
	case zapcore.BoolType:
		return attribute.Bool(f.Key, f.Integer != 0)
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return attribute.Int64(f.Key, f.Integer)
	case zapcore.Float64Type:
		if v, ok := f.Interface.(float64); ok {
			return attribute.Float64(f.Key, v)
		}
	case zapcore.Float32Type:
		if v, ok := f.Interface.(float32); ok {
			return attribute.Float64(f.Key, float64(v))
		}
	case zapcore.StringType:
		return attribute.String(f.Key, f.String)
	case zapcore.DurationType, zapcore.TimeType:
		return attribute.Int64(f.Key, f.Integer)
	case zapcore.ErrorType:
		if errVal, ok := f.Interface.(error); ok {
			return attribute.String(f.Key, errVal.Error())
		}
	}
	return attribute.String(f.Key, fmt.Sprint(f.Interface))
}
