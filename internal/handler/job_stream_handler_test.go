package handler_test

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/handler"
	"github.com/noah-isme/dsa-autograder/internal/models"
)

func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	})

	time.Sleep(50 * time.Millisecond)
	return "ws://" + listener.Addr().String()
}

func TestJobStreamPushesStatusChangesAndCloses(t *testing.T) {
	svc := newStubGradingService()
	svc.put(models.GradingJob{ID: "job-1", Status: models.JobStatusProcessing})

	app := fiber.New()
	handler.NewJobStreamHandler(svc, 20*time.Millisecond, zerolog.Nop()).Register(app.Group("/ws"))
	base := startFiberServer(t, app)

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/job/job-1", nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	var first handler.JobStreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "job-1", first.JobID)
	require.Equal(t, models.JobStatusProcessing, first.Status)
	require.Nil(t, first.Summary)

	svc.put(completedJob("job-1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var second handler.JobStreamMessage
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, models.JobStatusCompleted, second.Status)
	require.NotNil(t, second.Summary)
	require.Len(t, second.Results, 2)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestJobStreamUnknownJob(t *testing.T) {
	app := fiber.New()
	handler.NewJobStreamHandler(newStubGradingService(), 20*time.Millisecond, zerolog.Nop()).Register(app.Group("/ws"))
	base := startFiberServer(t, app)

	conn, resp, err := websocket.DefaultDialer.Dial(base+"/ws/job/missing", nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	require.True(t, strings.Contains(closeErr.Text, "not found"))
}

func TestJobStreamRequiresUpgrade(t *testing.T) {
	app := fiber.New()
	handler.NewJobStreamHandler(newStubGradingService(), 0, zerolog.Nop()).Register(app.Group("/ws"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/job/job-1", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
