// Command flowdnsd is FlowDNS's server binary: it loads a YAML
// configuration, opens the sqlite lease/zone store, and runs the DHCPv4,
// DHCPv6, dynamic-DNS-update and metrics components until signalled to
// stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/flowdns/flowdns/internal/config"
	"github.com/flowdns/flowdns/internal/logger"
)

var (
	flagConfig   = flag.String("conf", "", "Use this configuration file instead of the default search path")
	flagLogLevel = flag.String("loglevel", "info", fmt.Sprintf("Log level. One of %v", getLogLevels()))
	flagLogFile  = flag.String("logfile", "", "Name of the log file to append to. Default: stdout/stderr only")
)

var logLevels = map[string]logrus.Level{
	"debug":   logrus.DebugLevel,
	"info":    logrus.InfoLevel,
	"warning": logrus.WarnLevel,
	"error":   logrus.ErrorLevel,
	"fatal":   logrus.FatalLevel,
}

func getLogLevels() []string {
	levels := make([]string, 0, len(logLevels))
	for k := range logLevels {
		levels = append(levels, k)
	}
	return levels
}

func main() {
	flag.Parse()

	log := logger.GetLogger("main")
	level, ok := logLevels[*flagLogLevel]
	if !ok {
		log.Fatalf("invalid log level %q, valid levels are %v", *flagLogLevel, getLogLevels())
	}
	logger.SetLevel(log, level)
	if *flagLogFile != "" {
		log.Infof("logging to file %s", *flagLogFile)
		logger.WithFile(log, *flagLogFile)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatalf("flowdnsd exited: %v", err)
	}
	log.Info("flowdnsd stopped")
}
