package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kwv/cadmesh/cadastre"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "cadmesh",
		Short:         "cadmesh repairs cadastral layers and splits them into mapping tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// loadConfig reads path, falling back to defaults when the default path is absent.
func loadConfig(path string, explicit bool) (*cadastre.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		cfg := cadastre.DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return cadastre.LoadConfig(path)
}

func newRunCmd() *cobra.Command {
	var opts AppOptions
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on parcel, building and address layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}

			result, err := NewApp(cfg, logger, opts).Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("Done", "run", result.Report.RunID, "tasks", result.Report.Get("tasks"))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ParcelsPath, "parcels", "", "parcel layer (GeoJSON)")
	f.StringVar(&opts.BuildingsPath, "buildings", "", "building layer (GeoJSON)")
	f.StringVar(&opts.AddressesPath, "addresses", "", "address layer (GeoJSON, optional)")
	f.StringVarP(&opts.OutDir, "out", "o", "out", "output directory")
	f.StringVar(&opts.PreviewPath, "preview", "", "write a task preview (.svg or .png)")
	f.StringVar(&opts.DebugDir, "debug-dir", "", "write debug point layers to this directory")
	f.BoolVar(&opts.Publish, "publish", false, "publish the report over MQTT")
	f.Float64Var(&opts.ShiftX, "shift-x", 0, "shift input x coordinates")
	f.Float64Var(&opts.ShiftY, "shift-y", 0, "shift input y coordinates")
	f.Float64Var(&opts.Rotate, "rotate", 0, "rotate input around the origin, in degrees")
	f.Float64Var(&opts.Scale, "scale", 1, "scale input coordinates")
	f.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
	_ = cmd.MarkFlagRequired("parcels")
	_ = cmd.MarkFlagRequired("buildings")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var initPath string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(initPath); err == nil {
				return fmt.Errorf("%s already exists", initPath)
			}
			if err := cadastre.SaveConfig(initPath, cadastre.DefaultConfig()); err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Info("Wrote default configuration", "path", initPath)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", defaultConfigPath, "destination file")

	var showPath string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(showPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			return printConfig(cmd, cfg)
		},
	}
	showCmd.Flags().StringVarP(&showPath, "config", "c", defaultConfigPath, "path to configuration file")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// printConfig writes cfg as YAML with the MQTT password masked.
func printConfig(cmd *cobra.Command, cfg *cadastre.Config) error {
	shown := *cfg
	if shown.MQTT.Password != "" {
		shown.MQTT.Password = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
