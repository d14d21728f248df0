package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is dbusutil's entry point.
var RootCmd = &cobra.Command{
	Use:   "dbusutil",
	Short: "Call and monitor D-Bus methods and signals",
}

var rootVerboseFlag bool
var rootSessionFlag bool

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().BoolVar(&rootSessionFlag, "session", false, "connect to the session bus instead of the system bus")
}

// ConfigureVerbosity sets log verbosity from parsed flags. Every subcommand
// calls this before doing any work.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute runs the CLI, exiting with status 1 on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
