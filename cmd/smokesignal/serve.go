package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anime-shed/smokesignal-go/internal/container"
	"github.com/anime-shed/smokesignal-go/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func serveCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the detection HTTP server",
		Long:  `Serve the upload form and the detection API until SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx)
		},
	}
}

func runServe(ctx *cliContext) error {
	cfg := ctx.cfg

	c, err := container.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.WithError(err).Error("Failed to release resources")
		}
	}()

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      c.Handler(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + cfg.AlertTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"address": cfg.ServerAddress(),
			"timeout": cfg.RequestTimeout,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}

	logger.Info("Server exited")
	return nil
}
