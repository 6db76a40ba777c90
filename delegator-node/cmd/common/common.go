// Package common implements common delegator-node command options and
// utilities.
package common

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/delegation-marketplace/stx-delegator/common/logging"
	"github.com/delegation-marketplace/stx-delegator/config"
)

const (
	// CfgConfigFile is the flag used to specify a config file.
	CfgConfigFile = "config"
	// CfgDataDir is the flag used to specify a data directory.
	CfgDataDir = "datadir"

	dataDirPerm = 0o700
)

var (
	// RootFlags has the flags that are common across all commands.
	RootFlags = flag.NewFlagSet("", flag.ContinueOnError)

	rootLog = logging.GetLogger("delegator-node")

	initialized bool
)

// Logger returns the command logger.
func Logger() *logging.Logger {
	return rootLog
}

// DataDir returns the data directory iff one is set.
func DataDir() string {
	return config.GlobalConfig.Common.DataDir
}

// InitConfig loads the configuration file if one is given and applies the
// command line overrides.
func InitConfig() {
	if cfgFile := viper.GetString(CfgConfigFile); cfgFile != "" {
		if err := config.InitConfig(cfgFile); err != nil {
			EarlyLogAndExit(err)
		}
	}
	applyFlagOverrides(&config.GlobalConfig)
}

func applyFlagOverrides(cfg *config.Config) {
	if viper.IsSet(CfgDataDir) {
		cfg.Common.DataDir = viper.GetString(CfgDataDir)
	}
	if viper.IsSet(cfgLogFile) {
		cfg.Common.Log.File = viper.GetString(cfgLogFile)
	}
	if viper.IsSet(cfgLogFmt) {
		cfg.Common.Log.Format = viper.GetString(cfgLogFmt)
	}
	if viper.IsSet(cfgLogLevel) {
		cfg.Common.Log.Level = map[string]string{
			"default": viper.GetString(cfgLogLevel),
		}
	}
}

// Init initializes the common environment across all commands.
func Init() error {
	if initialized {
		return nil
	}

	initFns := []func() error{
		initDataDir,
		initLogging,
	}

	for _, fn := range initFns {
		if err := fn(); err != nil {
			return err
		}
	}

	rootLog.Debug("common initialization complete")
	initialized = true

	return nil
}

func initDataDir() error {
	dataDir := DataDir()
	if dataDir == "" {
		return nil
	}

	// Force the data directory to be an absolute path.
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return err
	}
	config.GlobalConfig.Common.DataDir = dataDir

	fi, err := os.Lstat(dataDir)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return os.MkdirAll(dataDir, dataDirPerm)
	default:
		return err
	}

	// Ensure the directory is actually a directory, with sufficiently
	// restrictive permissions.
	fm := fi.Mode()
	if !fm.IsDir() {
		return fmt.Errorf("init: datadir is not a directory")
	}
	if fm.Perm() != dataDirPerm {
		return fmt.Errorf("init: datadir has invalid permissions: %v", fm.Perm())
	}

	return nil
}

// NormalizePath resolves a relative path against the data directory.
func NormalizePath(f string) string {
	if !filepath.IsAbs(f) {
		return filepath.Clean(filepath.Join(DataDir(), f))
	}
	return f
}

// EarlyLogAndExit logs an error and exits.
//
// Note: This routine should only be used prior to the logging system
// being initialized.
func EarlyLogAndExit(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func init() {
	initLoggingFlags()

	RootFlags.String(CfgConfigFile, "", "config file")
	RootFlags.String(CfgDataDir, "", "data directory")
	_ = viper.BindPFlags(RootFlags)
	RootFlags.AddFlagSet(loggingFlags)
}
