package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mkleiva/riskview/internal/adapters/apiclient"
	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/config"
	"github.com/mkleiva/riskview/internal/listview"
	"github.com/mkleiva/riskview/internal/logging"
	"github.com/mkleiva/riskview/internal/mutation"
	"github.com/mkleiva/riskview/internal/reporting"
	"github.com/mkleiva/riskview/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const entryGCAfter = 15 * time.Minute
const outboundRequestsPerSecond = 10.0

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	flush, err := reporting.InitSentryOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry")

	ctx := logging.AddToContext(context.Background(), logger)
	ctx = reporting.SetStartedAtInContext(ctx, time.Now())
	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"instanceID": instanceID})

	otelShutdown, err := telemetry.SetupOTelSDK(ctx, "riskview")
	if err != nil {
		fail("Failed to initialize OpenTelemetry", "error", err.Error())
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
		}
	}()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client := apiclient.New(httpClient, config.APIBaseURL(), config.APIToken(), outboundRequestsPerSecond)

	store := querystore.New(entryGCAfter, time.Now)
	defer store.Close()
	executor := mutation.New(store)

	risks := listview.NewRiskController(store, executor, client, nil)
	defer risks.Close()
	controls := listview.NewControlController(store, executor, client, nil)
	defer controls.Close()
	logger.Info("Init complete")

	if err := exercise(ctx, risks, controls); err != nil {
		fail("Exercise run failed", "error", err.Error())
	}
}

// exercise drives both views through a representative session: a summary
// load, a filter change and the lazy escalation to detail mode. It stands in
// for the UI that would normally own the controllers.
func exercise(ctx context.Context, risks *listview.RiskController, controls *listview.ControlController) error {
	logger := logging.FromContext(ctx)

	if err := risks.Refresh(ctx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Loaded risks page", "rows", len(risks.Rows()))

	risks.View().EnableDetailMode()
	if err := risks.Refresh(ctx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Loaded risk relations", "activeQueries", len(risks.View().ActiveQueries()))

	if err := controls.Refresh(ctx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Loaded controls page", "rows", len(controls.Rows()))

	return nil
}
