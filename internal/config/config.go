package config

import (
	"errors"
	"fmt"
	"os"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const defaultDevelopmentAPIURL = "http://localhost:5000"

type Config struct {
	apiBaseURL string
	apiToken   string
	sentryDSN  string
	env        environment
}

func (c *Config) APIBaseURL() string {
	return c.apiBaseURL
}

func (c *Config) APIToken() string {
	return c.apiToken
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf("Config{env: %s, apiBaseURL: %s, ...}", string(c.env), c.apiBaseURL)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("RISKVIEW_ENVIRONMENT")
	if !ok {
		return missingKey("RISKVIEW_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: RISKVIEW_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	apiBaseURL := os.Getenv("RISKVIEW_API_URL")
	apiToken := os.Getenv("RISKVIEW_API_TOKEN")
	sentryDSN := os.Getenv("SENTRY_DSN")

	if env == production || env == staging {
		if apiBaseURL == "" {
			return missingKey("RISKVIEW_API_URL")
		}
		if apiToken == "" {
			return missingKey("RISKVIEW_API_TOKEN")
		}
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	if apiBaseURL == "" {
		apiBaseURL = defaultDevelopmentAPIURL
	}

	return Config{
		apiBaseURL: apiBaseURL,
		apiToken:   apiToken,
		sentryDSN:  sentryDSN,
		env:        env,
	}, nil
}
