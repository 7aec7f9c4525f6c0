package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// GetLogger returns the underlying logrus instance.
func GetLogger() *logrus.Logger {
	return log
}

func SetLevel(level LogLevel) {
	log.SetLevel(toLogrus(level))
}

// SetOutput mengganti tujuan log, misalnya io.Discard di test.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetJSONFormat switches to logrus' JSON formatter.
func SetJSONFormat() {
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
}

func toLogrus(level LogLevel) logrus.Level {
	switch level {
	case DEBUG:
		return logrus.DebugLevel
	case INFO:
		return logrus.InfoLevel
	case WARNING:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	case FATAL:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warning(args ...interface{})               { log.Warn(args...) }
func Warningf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }

// LogBlockEvent records a freshly mined block with structured fields.
func LogBlockEvent(index uint64, hash string, nonce uint64, elapsed time.Duration) {
	log.WithFields(logrus.Fields{
		"index":   index,
		"hash":    hash,
		"nonce":   nonce,
		"elapsed": elapsed.String(),
	}).Info("Block mined")
}
