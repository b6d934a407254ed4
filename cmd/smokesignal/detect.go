package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/anime-shed/smokesignal-go/internal/container"
	"github.com/anime-shed/smokesignal-go/internal/service"
	"github.com/anime-shed/smokesignal-go/internal/transport"
	"github.com/anime-shed/smokesignal-go/pkg/models"
)

func detectCommand(ctx *cliContext) *cobra.Command {
	var (
		noAlerts bool
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "detect [image...]",
		Short: "Classify local image files",
		Long: `Classify one or more image files and print one JSON object per line.

Alerts are sent for positive detections unless --no-alerts is given.

Examples:
  smokesignal detect tile_001.jpg tile_002.png
  smokesignal detect --no-alerts --workers 4 tiles/*.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if noAlerts {
				cfg.AlertsEnabled = false
			}
			if cmd.Flags().Changed("workers") {
				cfg.BatchWorkers = workers
			}

			c, err := container.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			items := c.Service().DetectPaths(runCtx, args)
			failed, err := writeBatch(cmd, items, c.Service().Threshold())
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(items))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noAlerts, "no-alerts", false, "Never send alert emails")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent detections, defaults to the CPU count")

	return cmd
}

// writeBatch prints one JSON line per item and returns the number of failures
func writeBatch(cmd *cobra.Command, items []service.BatchItem, threshold float64) (int, error) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, item := range items {
		line := models.BatchLine{Path: item.Path}
		if item.Err != nil {
			failed++
			resp := transport.NewErrorResponse(item.Err)
			line.Error = &resp
		} else {
			resp := transport.NewDetectionResponse(item.Outcome, threshold)
			line.Result = &resp
		}
		if err := enc.Encode(line); err != nil {
			return failed, fmt.Errorf("failed to write result: %w", err)
		}
	}
	return failed, nil
}
