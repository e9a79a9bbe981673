package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowrows/config"
	"github.com/leftmike/cowrows/flags"
)

var (
	cowrowsCmd = &cobra.Command{
		Use:               "cowrows",
		Short:             "A copy on write snapshot storage engine",
		Long: "Cowrows is a block structured in-memory table engine with copy on write " +
			"snapshot streaming.",
		PersistentPreRunE: cowrowsPreRun,
		PersistentPostRun: cowrowsPostRun,
	}

	logFile   = "cowrows.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "cowrows.hcl"
	noConfig   = false
	setVars    = []string{}

	cfg  = config.NewConfig()
	flgs = flags.Config(cfg)
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := cowrowsCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
	fs.StringSliceVar(&setVars, "set", setVars, "set a config variable as `name=value`")
}

func Execute() error {
	return cowrowsCmd.Execute()
}

func cowrowsPreRun(cmd *cobra.Command, args []string) error {
	for _, nameVal := range setVars {
		ss := strings.SplitN(nameVal, "=", 2)
		if len(ss) != 2 {
			return fmt.Errorf("cowrows: expected name=value; got %s", nameVal)
		}
		err := cfg.Set(ss[0], ss[1])
		if err != nil {
			return fmt.Errorf("cowrows: %s", err)
		}
	}

	if configFile != "" && !noConfig {
		if _, err := os.Stat(configFile); err == nil {
			err = cfg.Load(configFile)
			if err != nil {
				return fmt.Errorf("cowrows: %s", err)
			}
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("cowrows: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("cowrows: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("cowrows starting")
	return nil
}

func cowrowsPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("cowrows done")

	if logWriter != nil {
		logWriter.Close()
	}
}
