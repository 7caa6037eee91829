package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/models"
)

func newJobApp(svc *stubGradingService) *fiber.App {
	app := fiber.New()
	handler.NewJobHandler(svc, zerolog.Nop()).Register(app.Group("/api"))
	return app
}

func getJob(t *testing.T, app *fiber.App, id string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/job/"+id, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestJobHandler_Processing(t *testing.T) {
	svc := newStubGradingService()
	svc.put(models.GradingJob{ID: "job-1", Status: models.JobStatusProcessing})

	resp, body := getJob(t, newJobApp(svc), "job-1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"processing"}`, string(body))
}

func TestJobHandler_Failed(t *testing.T) {
	svc := newStubGradingService()
	svc.put(models.GradingJob{ID: "job-2", Status: models.JobStatusFailed, Error: "internal error while grading: boom"})

	resp, body := getJob(t, newJobApp(svc), "job-2")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"failed","error":"internal error while grading: boom"}`, string(body))
}

func TestJobHandler_CompletedIsStable(t *testing.T) {
	svc := newStubGradingService()
	svc.put(completedJob("job-3"))
	app := newJobApp(svc)

	_, first := getJob(t, app, "job-3")
	_, second := getJob(t, app, "job-3")
	require.Equal(t, first, second)

	var payload struct {
		Status  string                   `json:"status"`
		Summary map[string]interface{}   `json:"summary"`
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(first, &payload))
	require.Equal(t, "completed", payload.Status)
	require.Equal(t, "3.4s", payload.Summary["total_time"])
	require.Len(t, payload.Results, 2)
	require.Nil(t, payload.Results[1]["total_score"])
	require.Nil(t, payload.Results[1]["breakdown"])
}

func TestJobHandler_NotFound(t *testing.T) {
	resp, body := getJob(t, newJobApp(newStubGradingService()), "missing")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.JSONEq(t, `{"error":"job not found"}`, string(body))
}

func TestJobStatusContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "job_status.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)

	svc := newStubGradingService()
	svc.put(completedJob("done"))
	svc.put(models.GradingJob{ID: "running", Status: models.JobStatusProcessing})
	svc.put(models.GradingJob{ID: "broken", Status: models.JobStatusFailed, Error: "boom"})
	app := newJobApp(svc)

	for _, id := range []string{"done", "running", "broken"} {
		_, body := getJob(t, app, id)
		var document interface{}
		require.NoError(t, json.Unmarshal(body, &document))
		require.NoError(t, schema.Validate(document), "job %s", id)
	}
}
