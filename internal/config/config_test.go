package config_test

import (
	"testing"

	"github.com/mkleiva/riskview/internal/config"
	"github.com/stretchr/testify/require"
)

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

var allVariablesExceptEnv = []string{"RISKVIEW_API_URL", "RISKVIEW_API_TOKEN", "SENTRY_DSN"}

func TestGetConfig(t *testing.T) {
	compareConfig := func(apiBaseURL, apiToken, sentryDSN string, env environment, conf config.Config) {
		t.Helper()
		require.Equal(t, apiBaseURL, conf.APIBaseURL())
		require.Equal(t, apiToken, conf.APIToken())
		require.Equal(t, sentryDSN, conf.SentryDSN())
		require.Equal(t, env == production, conf.IsProduction())
		require.Equal(t, env == staging, conf.IsStaging())
		require.Equal(t, env == development, conf.IsDevelopment())
	}

	t.Run("ensure base environment is clean", func(t *testing.T) {
		t.Run("environment is missing", func(t *testing.T) {
			// RISKVIEW_ENVIRONMENT is required, so this should fail
			_, err := config.ConfigFromEnv()
			require.ErrorIs(t, err, config.ErrMissingRequiredValue)
		})

		t.Run("development environment gets a default API URL", func(t *testing.T) {
			t.Setenv("RISKVIEW_ENVIRONMENT", "development")

			conf, err := config.ConfigFromEnv()
			require.NoError(t, err)
			compareConfig("http://localhost:5000", "", "", development, conf)
		})
	})

	t.Run("values are read correctly", func(t *testing.T) {
		for _, variable := range allVariablesExceptEnv {
			t.Setenv(variable, variable)
		}

		for _, env := range []environment{production, staging, development} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("RISKVIEW_ENVIRONMENT", string(env))

				conf, err := config.ConfigFromEnv()
				require.NoError(t, err)
				compareConfig("RISKVIEW_API_URL", "RISKVIEW_API_TOKEN", "SENTRY_DSN", env, conf)
			})
		}
	})

	t.Run("production and staging fail when missing variables", func(t *testing.T) {
		// Set all variables
		for _, variable := range allVariablesExceptEnv {
			t.Setenv(variable, "placeholder_value")
		}

		for _, env := range []environment{production, staging} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("RISKVIEW_ENVIRONMENT", string(env))

				for _, variable := range allVariablesExceptEnv {
					t.Run(variable, func(t *testing.T) {
						t.Setenv(variable, "")

						_, err := config.ConfigFromEnv()
						require.ErrorIs(t, err, config.ErrMissingRequiredValue)
					})
				}
			})
		}
	})

	t.Run("invalid environment is rejected", func(t *testing.T) {
		t.Setenv("RISKVIEW_ENVIRONMENT", "testing123")

		_, err := config.ConfigFromEnv()
		require.ErrorIs(t, err, config.ErrInvalidValue)
	})
}
