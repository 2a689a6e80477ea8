// Package config loads cv-matcher settings from defaults, a YAML file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	ProviderEndpoint = "endpoint"
	ProviderGemini   = "gemini"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	RateLimit  RateLimitConfig  `mapstructure:"rate-limit"`
	AI         AIConfig         `mapstructure:"ai"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max-upload-bytes" validate:"gt=0"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

type StorageConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

type ExtractionConfig struct {
	MaxPages int `mapstructure:"max-pages" validate:"gt=0"`
}

type MatchingConfig struct {
	MinTextLength int `mapstructure:"min-text-length" validate:"gt=0"`
	MaxTextLength int `mapstructure:"max-text-length" validate:"gtfield=MinTextLength"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per-minute" validate:"gt=0"`
	PerHour   int `mapstructure:"per-hour" validate:"gtefield=PerMinute"`
}

type AIConfig struct {
	Provider     string        `mapstructure:"provider" validate:"oneof=endpoint gemini"`
	Endpoint     string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Token        string        `mapstructure:"token"`
	TokenFile    string        `mapstructure:"token-file"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxLogLength int           `mapstructure:"max-log-length" validate:"gte=0"`
	UserAgent    string        `mapstructure:"user-agent"`
	Model        string        `mapstructure:"model"`
}

// Address is the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.AI.Token != "" {
		out.AI.Token = "***"
	}
	return out
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) error {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read-timeout", "30s")
	v.SetDefault("server.write-timeout", "120s")
	v.SetDefault("server.shutdown-timeout", "15s")
	v.SetDefault("server.max-upload-bytes", 20<<20)
	v.SetDefault("server.cors.allowed-origins", []string{"*"})
	v.SetDefault("storage.root", "files")
	v.SetDefault("extraction.max-pages", 50)
	v.SetDefault("matching.min-text-length", 50)
	v.SetDefault("matching.max-text-length", 50000)
	v.SetDefault("rate-limit.per-minute", 20)
	v.SetDefault("rate-limit.per-hour", 300)
	v.SetDefault("ai.provider", ProviderEndpoint)
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max-log-length", 200)
	v.SetDefault("ai.user-agent", "spigell/cv-matcher")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.endpoint", "")
	v.SetDefault("ai.token", "")
	v.SetDefault("ai.token-file", "")

	bindings := map[string]string{
		"server.port":           "PORT",
		"storage.root":          "STORAGE_ROOT",
		"rate-limit.per-minute": "MAX_REQUESTS_PER_MINUTE",
		"rate-limit.per-hour":   "MAX_REQUESTS_PER_HOUR",
		"ai.provider":           "AI_PROVIDER",
		"ai.endpoint":           "AI_API_ENDPOINT",
		"ai.token":              "AI_API_TOKEN",
		"ai.token-file":         "AI_API_TOKEN_FILE",
		"ai.model":              "AI_MODEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s environment variable: %w", env, err)
		}
	}

	return nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Read loads the optional config file into v. A missing default file is not an error,
// an explicitly given one is.
func Read(v *viper.Viper, file, app string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(app)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Decode turns the merged viper settings into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateAI, AIConfig{})
	return v
}

// validateAI requires an endpoint URL when the endpoint provider is selected.
func validateAI(sl validator.StructLevel) {
	ai := sl.Current().Interface().(AIConfig)
	if ai.Provider == ProviderEndpoint && strings.TrimSpace(ai.Endpoint) == "" {
		sl.ReportError(ai.Endpoint, "Endpoint", "Endpoint", "required_for_endpoint_provider", "")
	}
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
