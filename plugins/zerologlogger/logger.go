package zerologlogger

import (
	"github.com/coderxlab/featurestream/logger"
	"github.com/rs/zerolog"
)

var _ logger.Base = (*ZerologLogger)(nil)

type ZerologLogger struct {
	l zerolog.Logger
}

func New(l zerolog.Logger) logger.Logger {
	return logger.WrapLogger(&ZerologLogger{l: l})
}

func (z *ZerologLogger) Level() logger.LogLevel {
	return mapFromZerologLevel(z.l.GetLevel())
}

func (z *ZerologLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	z.l.WithLevel(mapToZerologLevel(level)).Fields(kv).Msg(msg)
}

func (z *ZerologLogger) With(kv ...any) logger.Base {
	return &ZerologLogger{l: z.l.With().Fields(kv).Logger()}
}

func mapToZerologLevel(level logger.LogLevel) zerolog.Level {
	switch level {
	case logger.DebugLevel:
		return zerolog.DebugLevel
	case logger.InfoLevel:
		return zerolog.InfoLevel
	case logger.WarnLevel:
		return zerolog.WarnLevel
	case logger.ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func mapFromZerologLevel(level zerolog.Level) logger.LogLevel {
	switch level {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return logger.DebugLevel
	case zerolog.InfoLevel:
		return logger.InfoLevel
	case zerolog.WarnLevel:
		return logger.WarnLevel
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
