package logger

type LevelWrapper struct {
	Base

	// fields are prepended to the kv pairs of every log call
	fields []any
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{Base: l}
}

func (w *LevelWrapper) Log(level LogLevel, msg string, kv ...any) {
	if len(w.fields) > 0 {
		merged := make([]any, 0, len(w.fields)+len(kv))
		merged = append(merged, w.fields...)
		merged = append(merged, kv...)
		kv = merged
	}
	w.Base.Log(level, msg, kv...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	fields := make([]any, 0, len(w.fields)+len(kv))
	fields = append(fields, w.fields...)
	fields = append(fields, kv...)
	return &LevelWrapper{Base: w.Base, fields: fields}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}
