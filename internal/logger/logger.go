// Package logger provides the structured, prefixed logger shared by every
// FlowDNS component. It mirrors the teacher's logging setup: a single
// process-wide logrus.Logger, entries tagged with a per-component prefix,
// and optional file/stdout sinks selected at startup.
package logger

import (
	"io"
	"sync"

	log_prefixed "github.com/chappjc/logrus-prefix"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

var (
	globalLogger   *logrus.Logger
	getLoggerMutex sync.Mutex
)

// GetLogger returns a configured logger entry for the given component
// prefix, e.g. "lease", "dhcp4", "dnsupdate".
func GetLogger(prefix string) *logrus.Entry {
	if prefix == "" {
		prefix = "<no prefix>"
	}
	if globalLogger == nil {
		getLoggerMutex.Lock()
		defer getLoggerMutex.Unlock()
		if globalLogger == nil {
			l := logrus.New()
			l.SetFormatter(&log_prefixed.TextFormatter{
				FullTimestamp: true,
			})
			globalLogger = l
		}
	}
	return globalLogger.WithField("prefix", prefix)
}

// WithFile adds a file sink in addition to whatever output is already set.
func WithFile(log *logrus.Entry, logfile string) {
	log.Logger.AddHook(lfshook.NewHook(logfile, &logrus.TextFormatter{}))
}

// WithNoStdOutErr silences stdout/stderr output, e.g. when only file logging
// is desired.
func WithNoStdOutErr(log *logrus.Entry) {
	log.Logger.SetOutput(io.Discard)
}

// SetLevel adjusts the level of the shared logger.
func SetLevel(log *logrus.Entry, level logrus.Level) {
	log.Logger.SetLevel(level)
}
