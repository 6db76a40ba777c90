package common

import (
	"io"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/config"
)

const (
	cfgLogFile  = "log.file"
	cfgLogFmt   = "log.format"
	cfgLogLevel = "log.level"
	// Custom log levels for modules are not supported by the flags.
	// Use the config file instead.
)

// loggingFlags has the logging flags.
var loggingFlags = flag.NewFlagSet("", flag.ContinueOnError)

func initLogging() error {
	logCfg := config.GlobalConfig.Common.Log

	logLevel := logging.LevelInfo
	moduleLevels := map[string]logging.Level{}
	for k, v := range logCfg.Level {
		var lvl logging.Level
		if err := lvl.Set(v); err != nil {
			return err
		}
		if k == "default" {
			logLevel = lvl
			continue
		}
		moduleLevels[k] = lvl
	}

	var logFmt logging.Format
	if err := logFmt.Set(logCfg.Format); err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if logCfg.File != "" {
		var err error
		if w, err = os.OpenFile(NormalizePath(logCfg.File), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
			return err
		}
	}

	return logging.Initialize(w, logFmt, logLevel, moduleLevels)
}

func initLoggingFlags() {
	logFmt := logging.FmtLogfmt
	logLevel := logging.LevelInfo

	loggingFlags.String(cfgLogFile, "", "log file")
	loggingFlags.Var(&logFmt, cfgLogFmt, "log format")
	loggingFlags.Var(&logLevel, cfgLogLevel, "log level")

	_ = viper.BindPFlags(loggingFlags)
}
