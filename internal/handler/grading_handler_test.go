package handler_test

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/service"
)

func multipartRequest(t *testing.T, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/grade", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newGradingApp(svc service.GradingService, maxBytes int64) *fiber.App {
	app := fiber.New()
	handler.NewGradingHandler(svc, maxBytes, zerolog.Nop()).Register(app)
	return app
}

func TestGradingHandler_Accepted(t *testing.T) {
	callback := "https://lms.test/hook"
	svc := newStubGradingService()
	svc.accepted = dto.JobAcceptedResponse{JobID: "job-1", Status: "accepted", Message: "Processing 1 file(s)...", CallbackURL: &callback}
	app := newGradingApp(svc, 1024)

	req := multipartRequest(t, map[string]string{"sort.py": "print(1)"}, map[string]string{
		"student_name":    "2151001 - Lan",
		"assignment_code": "CTDL-01",
		"topic":           "sorting",
		"callback_url":    callback,
	})

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var payload map[string]interface{}
	decodeResponse(t, resp, &payload)
	require.Equal(t, "job-1", payload["job_id"])
	require.Equal(t, "accepted", payload["status"])
	require.Equal(t, callback, payload["callback_url"])
	_, enveloped := payload["success"]
	require.False(t, enveloped)

	require.Len(t, svc.lastReq.Files, 1)
	require.Equal(t, "sort.py", svc.lastReq.Files[0].Filename)
	require.Equal(t, []byte("print(1)"), svc.lastReq.Files[0].Data)
	require.Equal(t, "2151001 - Lan", svc.lastReq.StudentName)
	require.Equal(t, "CTDL-01", svc.lastReq.AssignmentCode)
	require.Equal(t, "sorting", svc.lastReq.Topic)
}

func TestGradingHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("notes.txt: %w", service.ErrFileTypeNotAllowed), fiber.StatusBadRequest},
		{service.ErrNoValidFiles, fiber.StatusBadRequest},
		{service.ErrInvalidCallbackURL, fiber.StatusBadRequest},
		{fmt.Errorf("big.zip: %w", service.ErrUploadTooLarge), fiber.StatusRequestEntityTooLarge},
		{errors.New("redis down"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			svc := newStubGradingService()
			svc.acceptErr = tc.err
			app := newGradingApp(svc, 1024)

			resp, err := app.Test(multipartRequest(t, map[string]string{"a.py": "x"}, nil), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var payload map[string]string
			decodeResponse(t, resp, &payload)
			require.NotEmpty(t, payload["error"])
		})
	}
}

func TestGradingHandler_RejectsOversizedFileBeforeReading(t *testing.T) {
	svc := newStubGradingService()
	app := newGradingApp(svc, 4)

	resp, err := app.Test(multipartRequest(t, map[string]string{"a.py": "print('too long')"}, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Empty(t, svc.lastReq.Files)
}

func TestGradingHandler_MissingFiles(t *testing.T) {
	svc := newStubGradingService()
	app := newGradingApp(svc, 1024)

	resp, err := app.Test(multipartRequest(t, nil, map[string]string{"student_name": "Lan"}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload map[string]string
	decodeResponse(t, resp, &payload)
	require.Equal(t, "at least one file is required", payload["error"])
}
