package cmd

import (
	"context"
	"log"

	"github.com/spigell/cv-matcher/internal/config"
	"github.com/spigell/cv-matcher/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	app = "cv-matcher"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "cv-matcher compares a CV with a job description and scores the fit",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// .env values must be in the environment before viper reads its bindings.
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	if err := config.SetDefaults(viper.GetViper()); err != nil {
		log.Fatal(err)
	}

	// We can't proceed if the config file parsed with error.
	if err := config.Read(viper.GetViper(), cfgFile, app); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*config.Config, error) {
	return config.Decode(viper.GetViper())
}

func newLogger() (*zap.Logger, error) {
	return logger.New(logger.Config{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
}
