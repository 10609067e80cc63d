// heapctl drives the heap from the command line: it executes allocation
// traces against a freshly configured heap, prints accounting, and runs the
// consistency checker.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/heapcraft/memmgr/dataseg"
	"github.com/heapcraft/memmgr/heap"
)

// The prefix for configuration keys inside environment.
const envPrefix = "HEAPCTL"

const (
	keyConfig = "config"

	flagNamePolicy          = "policy"
	flagNameChunkSize       = "chunk-size"
	flagNameShrinkThreshold = "shrink-threshold"
	flagNameLimit           = "limit"
	flagNameLogLevel        = "log-level"
)

type heapConfiguration struct {
	// Configuration file path, optional
	CfgFile string

	Policy          string
	ChunkSize       int
	ShrinkThreshold int
	// Limit caps the data segment in bytes; 0 means uncapped
	Limit    int
	LogLevel int
}

func newRootCmd() *cobra.Command {
	config := &heapConfiguration{}

	rootCmd := &cobra.Command{
		Use:           "heapctl",
		Short:         "Exercise and inspect a boundary-tag heap",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&config.CfgFile, keyConfig, "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&config.Policy, flagNamePolicy, "implicit", "free list policy, one of: implicit, explicit")
	rootCmd.PersistentFlags().IntVar(&config.ChunkSize, flagNameChunkSize, heap.DefaultChunkSize, "heap growth chunk in bytes, a power of two")
	rootCmd.PersistentFlags().IntVar(&config.ShrinkThreshold, flagNameShrinkThreshold, 0, "return memory above this many free top-of-heap bytes, 0 disables")
	rootCmd.PersistentFlags().IntVar(&config.Limit, flagNameLimit, 0, "hard cap on the data segment in bytes, 0 for uncapped")
	rootCmd.PersistentFlags().IntVar(&config.LogLevel, flagNameLogLevel, 0, "heap diagnostic verbosity: 0 off, 1 operations, 2 verbose")

	rootCmd.AddCommand(newRunCmd(config))
	rootCmd.AddCommand(newCheckCmd(config))

	return rootCmd
}

// initializeConfig reads in config file and ENV variables if set: flags win
// over HEAPCTL_* environment variables, which win over the config file.
func initializeConfig(cmd *cobra.Command, config *heapConfiguration) error {
	v := viper.New()

	if config.CfgFile != "" {
		v.SetConfigFile(config.CfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

// Bind each cobra flag to its associated viper configuration (config file and
// environment variable).
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindFlagErr []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == keyConfig {
			// the config file location itself only comes from the flag
			return
		}

		// Environment variables can't have dashes in them, so bind them to
		// their equivalent keys with underscores, e.g. --chunk-size to
		// HEAPCTL_CHUNK_SIZE
		if strings.Contains(f.Name, "-") {
			envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("binding env to flag %q: %w", f.Name, err))
				return
			}
		}

		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				bindFlagErr = append(bindFlagErr, fmt.Errorf("setting flag %q value: %w", f.Name, err))
				return
			}
		}
	})

	return errors.Join(bindFlagErr...)
}

func (c *heapConfiguration) parsePolicy() (heap.Policy, error) {
	switch c.Policy {
	case "implicit":
		return heap.PolicyImplicit, nil
	case "explicit":
		return heap.PolicyExplicit, nil
	default:
		return 0, fmt.Errorf("unknown free list policy %q, expected implicit or explicit", c.Policy)
	}
}

// buildHeap constructs a fresh heap over a byte-slice data segment according
// to the resolved configuration.
func (c *heapConfiguration) buildHeap() (*heap.Heap, error) {
	policy, err := c.parsePolicy()
	if err != nil {
		return nil, err
	}

	h, err := heap.New(dataseg.NewSegment(c.Limit), heap.Config{
		Policy:          policy,
		ChunkSize:       c.ChunkSize,
		ShrinkThreshold: c.ShrinkThreshold,
		Logger:          slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
		LogLevel:        c.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing heap: %w", err)
	}
	return h, nil
}
