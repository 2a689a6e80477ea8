package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/cv-matcher/internal/failure"
	"github.com/spigell/cv-matcher/internal/pipeline"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a CV against a vacancy locally and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return match(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("cv", "", "path to the CV pdf")
	matchCmd.Flags().String("vacancy", "", "path to the vacancy pdf")
}

func match(ctx context.Context, cmd *cobra.Command) error {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	cvPath, err := pathFromFlagOrPrompt(cmd, "cv", "Path to the CV pdf")
	if err != nil {
		return err
	}
	vacancyPath, err := pathFromFlagOrPrompt(cmd, "vacancy", "Path to the vacancy pdf")
	if err != nil {
		return err
	}

	cv, err := readUpload(cvPath)
	if err != nil {
		return err
	}
	vacancy, err := readUpload(vacancyPath)
	if err != nil {
		return err
	}

	m, err := buildMatcher(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the matcher", zap.Error(err))
	}

	outcome, err := m.pipeline.Run(ctx, cv, vacancy)
	if err != nil {
		var classified *failure.Error
		if errors.As(err, &classified) && classified.Retryable() {
			logger.Warn("match can be retried later", zap.Int64("retry_after_ms", classified.RetryAfterMs()))
		}
		return err
	}

	return printOutcome(cmd.OutOrStdout(), outcome)
}

func pathFromFlagOrPrompt(cmd *cobra.Command, flag, label string) (string, error) {
	if path := strings.TrimSpace(cmd.Flag(flag).Value.String()); path != "" {
		return path, validatePDFPath(path)
	}

	prompt := promptui.Prompt{
		Label:    label,
		Validate: validatePDFPath,
	}

	path, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("asking for %s: %w", flag, err)
	}
	return strings.TrimSpace(path), nil
}

func validatePDFPath(input string) error {
	path := strings.TrimSpace(input)
	if path == "" {
		return errors.New("path is required")
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return errors.New("file must have a .pdf extension")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file is not accessible: %w", err)
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	return nil
}

func readUpload(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("reading %s: %w", path, err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}

	return pipeline.Upload{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	}, nil
}

func printOutcome(w io.Writer, outcome *pipeline.Outcome) error {
	pretty, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outcome: %w", err)
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}
