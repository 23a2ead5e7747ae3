package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EarlyLog reports problems that happen before the configured logger exists,
// such as a missing or invalid config file. It always writes JSON to stderr.
type EarlyLog struct {
	log *zap.SugaredLogger
}

func NewEarlyLog(serviceName string) *EarlyLog {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.MessageKey = "message"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return &EarlyLog{log: zap.New(core).Sugar().With("service_name", serviceName, "phase", "startup")}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}
