package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/exam-scheduler/pkg/config"
)

func New(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// stdout carries JSON results; keep logs on stderr.
	zapCfg.OutputPaths = []string{"stderr"}

	return zapCfg.Build()
}

// SchedulerRun returns the structured fields attached to every log line of a
// scheduling run.
func SchedulerRun(runID string, exams, rooms, proctors, slots int) []zap.Field {
	return []zap.Field{
		zap.String("run_id", runID),
		zap.Int("exams", exams),
		zap.Int("rooms", rooms),
		zap.Int("proctors", proctors),
		zap.Int("time_slots", slots),
	}
}
