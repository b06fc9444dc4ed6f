package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
	patterns  *patternSet
}

func (imp *impl) Name() string {
	return imp.name
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

// Sublogger names the child "<parent>.<subname>". It starts at the parent's level unless a
// configured pattern matches the full name.
func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	level := imp.level.Get()
	if patternLevel, ok := imp.patterns.levelFor(newName); ok {
		level = patternLevel
	}
	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(level),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
		patterns:  imp.patterns,
	}
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// AsZap returns a sugared zap logger at this logger's level. Appenders that are themselves
// zapcore cores (the test observer) are teed in.
func (imp *impl) AsZap() *zap.SugaredLogger {
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(NewEncoderConfig()), zapcore.Lock(os.Stdout), imp.GetLevel().AsZap()),
	}
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
		}
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar().Named(imp.name)
}

func (imp *impl) enabled(level Level) bool {
	return level >= imp.level.Get()
}

func (imp *impl) newEntry(level Level, msg string) zapcore.Entry {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	return entry
}

func (imp *impl) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

func (imp *impl) log(level Level, args ...interface{}) {
	if imp.enabled(level) {
		imp.write(imp.newEntry(level, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) logf(level Level, template string, args ...interface{}) {
	if imp.enabled(level) {
		imp.write(imp.newEntry(level, fmt.Sprintf(template, args...)), nil)
	}
}

// logw turns the odd elements of keysAndValues into field names for the element that follows.
func (imp *impl) logw(level Level, msg string, keysAndValues ...interface{}) {
	if !imp.enabled(level) {
		return
	}
	entry := imp.newEntry(level, msg)
	fields := make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		var key string
		if stringer, ok := keysAndValues[keyIdx].(fmt.Stringer); ok {
			key = stringer.String()
		} else {
			key = fmt.Sprintf("%v", keysAndValues[keyIdx])
		}

		if keyIdx+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[keyIdx+1]))
		} else {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
		}
	}
	imp.write(entry, fields)
}

func (imp *impl) Debug(args ...interface{}) { imp.log(DEBUG, args...) }

func (imp *impl) Debugf(template string, args ...interface{}) { imp.logf(DEBUG, template, args...) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logw(DEBUG, msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) { imp.log(INFO, args...) }

func (imp *impl) Infof(template string, args ...interface{}) { imp.logf(INFO, template, args...) }

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logw(INFO, msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) { imp.log(WARN, args...) }

func (imp *impl) Warnf(template string, args ...interface{}) { imp.logf(WARN, template, args...) }

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logw(WARN, msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) { imp.log(ERROR, args...) }

func (imp *impl) Errorf(template string, args ...interface{}) { imp.logf(ERROR, template, args...) }

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logw(ERROR, msg, keysAndValues...)
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.log(ERROR, args...)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.logf(ERROR, template, args...)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.logw(ERROR, msg, keysAndValues...)
	os.Exit(1)
}

// getCaller walks past getCaller, newEntry, the log helper and the public method.
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 4
	var entryCaller zapcore.EntryCaller
	var ok bool
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true
	if runtimeFunc := runtime.FuncForPC(entryCaller.PC); runtimeFunc != nil {
		entryCaller.Function = runtimeFunc.Name()
	}
	return entryCaller
}
