// SPDX-License-Identifier: MIT
package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"accelfft/internal/config"
	"accelfft/pkg/build"
)

// Options is the outcome of parsing the command line: the configuration to
// run with, plus what main should do with it.
type Options struct {
	Config  *config.Config
	Command string // "run", "version", or "exit" when cobra already printed help or version
	TUI     bool
}

// flagValues holds the raw flag values. They only override the loaded
// configuration when set on the command line.
type flagValues struct {
	configPath string
	mode       string
	blockSize  int
	shmPath    string
	sensorBus  string
	tui        bool
	verbose    bool
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies the flags on top of it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	var flags flagValues

	run := func(role string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, flags)
			if role != "" {
				cfg.Role = role
			}
			opts.Config = cfg
			opts.Command = "run"
			opts.TUI = flags.tui
			return cfg.Validate()
		}
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: run(""),
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	producerCmd := &cobra.Command{
		Use:   "producer",
		Short: "Run only the producer side against a shared region file",
		Args:  cobra.NoArgs,
		RunE:  run(config.RoleProducer),
	}
	consumerCmd := &cobra.Command{
		Use:   "consumer",
		Short: "Run only the consumer side against a shared region file",
		Args:  cobra.NoArgs,
		RunE:  run(config.RoleConsumer),
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			opts.Command = "version"
		},
	}
	rootCmd.AddCommand(producerCmd, consumerCmd, versionCmd)

	// Configuration
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"Configuration file. Defaults to ./"+config.DefaultConfigFileName+" or ./"+config.FallbackConfigFileName)

	// Pipeline Configuration
	rootCmd.PersistentFlags().StringVarP(&flags.mode, "mode", "m", config.DefaultMode,
		"Transform path: 'software' (producer computes the spectrum) or 'hardware' (DMA accelerator)")
	rootCmd.PersistentFlags().IntVarP(&flags.blockSize, "block-size", "n", config.DefaultBlockSize,
		"Samples per block, a power of two")
	rootCmd.PersistentFlags().StringVar(&flags.shmPath, "shm", "",
		"Shared region file. Required when the roles run as separate processes")
	rootCmd.PersistentFlags().StringVarP(&flags.sensorBus, "bus", "b", config.DefaultSensorBus,
		"Sample source: 'sim', 'sawtooth' or an I2C device such as /dev/i2c-1")

	// Display Configuration
	rootCmd.PersistentFlags().BoolVarP(&flags.tui, "tui", "t", false,
		"Show reports in a terminal monitor")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output and trace flag transitions")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	// --help and --version are handled by cobra without running a command.
	if opts.Command == "" {
		opts.Command = "exit"
	}
	return opts, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, f flagValues) {
	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Pipeline.Mode = strings.ToLower(f.mode)
	}
	if changed("block-size") {
		cfg.Pipeline.BlockSize = f.blockSize
	}
	if changed("shm") {
		cfg.SHM.Path = f.shmPath
	}
	if changed("bus") {
		cfg.Sensor.Bus = f.sensorBus
	}
	if changed("verbose") && f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
}
