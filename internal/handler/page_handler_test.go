package handler_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/render"
)

func newPageApp(svc *stubGradingService) *fiber.App {
	app := fiber.New(fiber.Config{Views: render.NewEngine()})
	handler.NewPageHandler(svc, "DSA AutoGrader", zerolog.Nop()).Register(app)
	return app
}

func getPage(t *testing.T, app *fiber.App, target string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestPageHandler_Index(t *testing.T) {
	status, body := getPage(t, newPageApp(newStubGradingService()), "/")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, `name="files"`)
	require.Contains(t, body, "DSA AutoGrader")
}

func TestPageHandler_ResultsFiltersCards(t *testing.T) {
	svc := newStubGradingService()
	svc.put(completedJob("job-1"))
	app := newPageApp(svc)

	status, body := getPage(t, app, "/results?job_id=job-1")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, "merge_sort.py")
	require.Contains(t, body, "bfs.py")
	require.Contains(t, body, "30/40")
	require.Contains(t, body, "Average score: 78.0")

	status, body = getPage(t, app, "/results?job_id=job-1&status=pending")
	require.Equal(t, fiber.StatusOK, status)
	require.NotContains(t, body, "merge_sort.py")
	require.Contains(t, body, "bfs.py")
	require.Contains(t, body, "No score yet")

	_, body = getPage(t, app, "/results?job_id=job-1&q=merge")
	require.Contains(t, body, "merge_sort.py")
	require.NotContains(t, body, "bfs.py")
}

func TestPageHandler_ProcessingAndFailed(t *testing.T) {
	svc := newStubGradingService()
	svc.put(models.GradingJob{ID: "running", Status: models.JobStatusProcessing})
	svc.put(models.GradingJob{ID: "broken", Status: models.JobStatusFailed, Error: "internal error while grading"})
	app := newPageApp(svc)

	status, body := getPage(t, app, "/results?job_id=running")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, `http-equiv="refresh" content="2"`)

	status, body = getPage(t, app, "/results?job_id=broken")
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, body, "internal error while grading")

	status, _ = getPage(t, app, "/results?job_id=unknown")
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = getPage(t, app, "/results")
	require.Equal(t, fiber.StatusFound, status)
}
