package logger

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

func getSingleton() *Logger {
	return singleton
}

// Init initializes the global logger with one or more logging backends.
// Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

// New builds a standalone Logger that is not registered as the global one.
// Components that keep their own log history (the scheduler's system log)
// combine a private backend with Global().
func New(instances ...LoggerInstance) *Logger {
	return &Logger{instances: instances}
}

// Global returns the backend registered through Init as a LoggerInstance,
// or a no-op instance when Init has not been called.
func Global() LoggerInstance {
	return globalInstance{}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	getSingleton().Log(message, keyvals...)
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	getSingleton().Info(message, keyvals...)
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	getSingleton().Warn(message, keyvals...)
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	getSingleton().Error(message, keyvals...)
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	getSingleton().Debug(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	getSingleton().Fatal(message, keyvals...)
}

func (l *Logger) Log(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Log(message, keyvals...)
	}
}

func (l *Logger) Info(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Info(message, keyvals...)
	}
}

func (l *Logger) Warn(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Warn(message, keyvals...)
	}
}

func (l *Logger) Error(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Error(message, keyvals...)
	}
}

func (l *Logger) Debug(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Debug(message, keyvals...)
	}
}

func (l *Logger) Fatal(message string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		instance.Fatal(message, keyvals...)
	}
}

// globalInstance forwards to whatever singleton is current at call time,
// so a Logger built before Init still reaches the console once it exists.
type globalInstance struct{}

func (globalInstance) Log(m string, kv ...any)   { Log(m, kv...) }
func (globalInstance) Debug(m string, kv ...any) { Debug(m, kv...) }
func (globalInstance) Info(m string, kv ...any)  { Info(m, kv...) }
func (globalInstance) Warn(m string, kv ...any)  { Warn(m, kv...) }
func (globalInstance) Error(m string, kv ...any) { Error(m, kv...) }
func (globalInstance) Fatal(m string, kv ...any) { Fatal(m, kv...) }
