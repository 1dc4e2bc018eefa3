// Package cmd is the dumpwriter CLI root command: the coordinating
// peer that performs the Mach bootstrap rendezvous with a target
// process over stdin/stdout and drives WriteDump to produce a
// DumpArtifact (SPEC_FULL.md §0).
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/think-cell/minidump/internal/config"
)

var cfgFile string

// BuildVersion is set via -ldflags at release build time and recorded
// as the envelope's <version val="..."/> (spec.md §6).
var BuildVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "dumpwriter <artifact-path>",
	Short: "rendezvous with a crashed target and write a minidump artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

// Execute runs the dumpwriter root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/minidump/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func initConfig() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "minidump"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("minidump")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("config", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := writeDump(cfg, args[0]); err != nil {
		return fmt.Errorf("dumpwriter: %v", err)
	}
	return nil
}
