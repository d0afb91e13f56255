package logger

import (
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// gocronLogger routes scheduler logs into the global zap logger.
type gocronLogger struct{}

// NewGocronLogger returns a gocron.Logger backed by zap.L().
func NewGocronLogger() gocron.Logger {
	return gocronLogger{}
}

func (gocronLogger) Debug(msg string, args ...any) { zap.L().Sugar().Debugw(msg, normalize(args)...) }
func (gocronLogger) Info(msg string, args ...any)  { zap.L().Sugar().Infow(msg, normalize(args)...) }
func (gocronLogger) Warn(msg string, args ...any)  { zap.L().Sugar().Warnw(msg, normalize(args)...) }
func (gocronLogger) Error(msg string, args ...any) { zap.L().Sugar().Errorw(msg, normalize(args)...) }

// normalize turns gocron's loose key/value list into pairs zap accepts:
// non-string keys are skipped and a dangling value gets the key "value".
func normalize(args []any) []any {
	out := make([]any, 0, len(args)+1)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			out = append(out, "value", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		out = append(out, key, args[i+1])
	}
	return out
}
