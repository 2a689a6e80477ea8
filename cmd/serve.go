package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/cv-matcher/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-matcher", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config.Redacted(), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := buildMatcher(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matcher", zap.Error(err))
	}

	srv := server.New(m.pipeline, m.admission, server.Options{
		Address:         config.Server.Address(),
		ReadTimeout:     config.Server.ReadTimeout,
		WriteTimeout:    config.Server.WriteTimeout,
		ShutdownTimeout: config.Server.ShutdownTimeout,
		MaxUploadBytes:  config.Server.MaxUploadBytes,
		AllowedOrigins:  config.Server.CORS.AllowedOrigins,
		Version:         version,
	}, logger.Named("server"))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	logger.Info("exiting", zap.String("reason", "server stopped"))
	return nil
}
