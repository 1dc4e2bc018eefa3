// Package cmd is the opendump CLI root command (spec.md §6:
// "opendump <path-to-dump-file>").
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
	"github.com/think-cell/minidump/internal/target"
	"github.com/think-cell/minidump/pkg/symcache"
)

var cfgFile string

// NewEngine constructs the debugger.Engine this build drives. spec.md
// §1 lists the debugger engine as an out-of-scope external
// collaborator "assumed available as a library"; this package bundles
// no implementation of it, so a production build must set NewEngine
// before Execute runs (e.g. from an engine-specific build-tagged file
// that wires a concrete lldb/SBDebugger binding).
var NewEngine func() (target.Engine, error)

var rootCmd = &cobra.Command{
	Use:   "opendump <path-to-dump-file>",
	Short: "load a minidump crash snapshot into a debugger target",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

// Execute runs the opendump root command, exiting non-zero on load
// failure or missing arguments per spec.md §6.
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
	dumpPath := args[0]

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("opendump: HOME is required: %v", err)
	}

	info, err := os.Stat(dumpPath)
	if err != nil {
		return fmt.Errorf("opendump: %v", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("opendump: %s is not a regular file", dumpPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if NewEngine == nil {
		return fmt.Errorf("opendump: no debugger engine wired into this build")
	}
	engine, err := NewEngine()
	if err != nil {
		return fmt.Errorf("opendump: construct debugger engine: %v", err)
	}

	cache, err := symcache.NewBinaryCache(256)
	if err != nil {
		return fmt.Errorf("opendump: %v", err)
	}

	// spec.md §6 reconfigures stdio to line buffering before handing off
	// to the debugger's interactive command interpreter; os.Stdout/
	// os.Stderr are unbuffered by default in Go, so no equivalent setvbuf
	// call is needed here.

	assembler := &target.TargetAssembler{
		Engine:          engine,
		UuidIndex:       symcache.UuidIndex{Root: cfg.Roots.UUIDIndex},
		SymbolIndex:     symcache.SymbolIndex{Root: cfg.Roots.SymbolIndex},
		Cache:           cache,
		CacheRoot:       cfg.Roots.CacheRoot,
		Home:            home,
		MountSource:     cfg.MountSource,
		SourceServerURL: cfg.Roots.SourceURL,
	}

	if err := assembler.Load(dumpPath); err != nil {
		return err
	}
	return assembler.Run()
}
