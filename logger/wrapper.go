package logger

type LevelWrapper struct {
	b Base
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{b: l}
}

func (w *LevelWrapper) Level() LogLevel {
	return w.b.Level()
}

func (w *LevelWrapper) Log(level LogLevel, msg string, kv ...any) {
	w.b.Log(level, msg, kv...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	return &LevelWrapper{b: w.b.With(kv...)}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.b.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.b.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.b.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.b.Log(ErrorLevel, msg, kv...)
}
