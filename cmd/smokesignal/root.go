package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anime-shed/smokesignal-go/internal/config"
	"github.com/anime-shed/smokesignal-go/internal/logger"
)

// cliContext is shared by all sub-commands once the root has loaded configuration
type cliContext struct {
	cfg *config.Config

	envFile   string
	logLevel  string
	modelPath string
	backend   string
	threshold float64
}

func rootCommand() *cobra.Command {
	ctx := &cliContext{}

	rootCmd := &cobra.Command{
		Use:          "smokesignal",
		Short:        "Wildfire detection from satellite imagery",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx)
		},
	}

	setupFlags(rootCmd, ctx)

	rootCmd.AddCommand(
		serveCommand(ctx),
		detectCommand(ctx),
		checkEmailCommand(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(cmd, ctx)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, ctx *cliContext) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.envFile, "env-file", ".env", "Path to a .env file with settings")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVarP(&ctx.modelPath, "model", "m", "", "Path to the classifier model")
	flags.StringVar(&ctx.backend, "backend", "", "Model backend: onnx, tflite")
	flags.Float64VarP(&ctx.threshold, "threshold", "t", 0, "Confidence threshold, a score must exceed it to count as a detection")
}

// initialize loads configuration and applies flags that were set explicitly
func initialize(cmd *cobra.Command, ctx *cliContext) error {
	cfg, err := config.LoadFile(ctx.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = ctx.logLevel
	}
	if flags.Changed("model") {
		cfg.ModelPath = ctx.modelPath
	}
	if flags.Changed("backend") {
		cfg.ModelBackend = ctx.backend
	}
	if flags.Changed("threshold") {
		cfg.ConfidenceThreshold = ctx.threshold
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.SetLevel(cfg.LogLevel)
	ctx.cfg = cfg
	return nil
}
