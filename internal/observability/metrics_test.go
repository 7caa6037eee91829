package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesGradingCollectors(t *testing.T) {
	GradingJobs().WithLabelValues("accepted").Inc()
	GradingFiles().WithLabelValues("PASS").Inc()
	WebhookDeliveries().WithLabelValues("delivered").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `grader_jobs_total{status="accepted"}`))
	require.True(t, strings.Contains(text, `grader_files_total{status="PASS"}`))
	require.True(t, strings.Contains(text, `grader_webhook_deliveries_total{outcome="delivered"}`))
}

func TestNewHTTPClientUsesTimeout(t *testing.T) {
	client := NewHTTPClient(0)
	require.NotNil(t, client.Transport)
}
