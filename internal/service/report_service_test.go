package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/dsa-autograder/internal/database"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/repository"
)

func setupReportRepository(t *testing.T) (repository.SubmissionRecordRepository, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	repo := repository.NewSubmissionRecordRepository(db)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	records := []models.SubmissionRecord{
		{StudentID: "2151001", StudentName: "Lan", AssignmentCode: "CTDL-01", Filename: "bubble.py", TotalScore: intPtr(85), StyleScore: intPtr(8), AlgorithmScore: intPtr(35), ComplexityScore: intPtr(7), TestScore: intPtr(35), Status: models.SubmissionStatusPass, SubmittedAt: base},
		{StudentID: "2151001", StudentName: "Lan", AssignmentCode: "CTDL-02", Filename: "bfs.py", TotalScore: intPtr(42), Status: models.SubmissionStatusFail, SubmittedAt: base.Add(time.Hour)},
		{StudentID: "2151002", StudentName: "Minh", AssignmentCode: "CTDL-01", Filename: "merge.py", TotalScore: intPtr(61), Status: models.SubmissionStatusPass, SubmittedAt: base.Add(2 * time.Hour)},
		{StudentID: "2151002", StudentName: "Minh", AssignmentCode: "CTDL-01", Filename: "heap.py", Status: models.SubmissionStatusPending, SubmittedAt: base.Add(3 * time.Hour)},
	}
	for i := range records {
		require.NoError(t, repo.Create(context.Background(), &records[i]))
	}
	return repo, db
}

func TestReportServiceStudentScores(t *testing.T) {
	repo, _ := setupReportRepository(t)
	svc := NewReportService(repo, nil, 0, zerolog.Nop())

	resp, err := svc.StudentScores(context.Background(), " 2151001 ")
	require.NoError(t, err)
	require.Equal(t, "2151001", resp.StudentID)
	require.Equal(t, 2, resp.Total)
	require.Equal(t, "bfs.py", resp.Submissions[0].Filename)
	require.Nil(t, resp.Submissions[0].Breakdown)
	require.NotNil(t, resp.Submissions[1].Breakdown)
	require.Equal(t, 35, resp.Submissions[1].Breakdown.TestScore)
	require.Equal(t, []string{}, resp.Submissions[0].Notes)

	empty, err := svc.StudentScores(context.Background(), "unknown")
	require.NoError(t, err)
	require.Equal(t, 0, empty.Total)
	require.NotNil(t, empty.Submissions)

	_, err = svc.StudentScores(context.Background(), "  ")
	require.ErrorIs(t, err, ErrStudentIDRequired)
}

func TestReportServiceAssignmentScoresBestFirst(t *testing.T) {
	repo, _ := setupReportRepository(t)
	svc := NewReportService(repo, nil, 0, zerolog.Nop())

	resp, err := svc.AssignmentScores(context.Background(), "CTDL-01")
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)
	require.Equal(t, "bubble.py", resp.Submissions[0].Filename)
	require.Equal(t, "merge.py", resp.Submissions[1].Filename)
	require.Equal(t, "heap.py", resp.Submissions[2].Filename)

	_, err = svc.AssignmentScores(context.Background(), "")
	require.ErrorIs(t, err, ErrAssignmentCodeRequired)
}

func TestReportServiceStatsCached(t *testing.T) {
	repo, db := setupReportRepository(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewReportService(repo, client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	stats, err := svc.Stats(ctx, "CTDL-01")
	require.NoError(t, err)
	require.Equal(t, "CTDL-01", stats.AssignmentCode)
	require.Equal(t, int64(3), stats.TotalSubmissions)
	require.Equal(t, 73.0, *stats.AvgScore)
	require.Equal(t, 85, *stats.MaxScore)
	require.Equal(t, 61, *stats.MinScore)
	require.Equal(t, int64(2), stats.Passed)
	require.True(t, mr.Exists("grader:stats:ctdl-01"))

	require.NoError(t, db.Create(&models.SubmissionRecord{
		StudentID: "2151003", AssignmentCode: "CTDL-01", Filename: "late.py",
		TotalScore: intPtr(10), Status: models.SubmissionStatusFail, SubmittedAt: time.Now(),
	}).Error)

	cached, err := svc.Stats(ctx, "CTDL-01")
	require.NoError(t, err)
	require.Equal(t, int64(3), cached.TotalSubmissions)

	mr.FastForward(2 * time.Minute)
	fresh, err := svc.Stats(ctx, "CTDL-01")
	require.NoError(t, err)
	require.Equal(t, int64(4), fresh.TotalSubmissions)
	require.Equal(t, 10, *fresh.MinScore)
}

func TestReportServiceStatsWithoutScores(t *testing.T) {
	repo, _ := setupReportRepository(t)
	svc := NewReportService(repo, nil, 0, zerolog.Nop())

	stats, err := svc.Stats(context.Background(), "CTDL-99")
	require.NoError(t, err)
	require.Equal(t, int64(0), stats.TotalSubmissions)
	require.Nil(t, stats.AvgScore)
	require.Nil(t, stats.MaxScore)
}

func TestReportServiceSummaries(t *testing.T) {
	repo, _ := setupReportRepository(t)
	svc := NewReportService(repo, nil, 0, zerolog.Nop())
	ctx := context.Background()

	students, err := svc.StudentSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	require.Equal(t, "2151001", students[0].StudentID)
	require.Equal(t, int64(2), students[0].SubmissionCount)
	require.Equal(t, 85, *students[0].BestScore)

	assignments, err := svc.AssignmentSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.Equal(t, "CTDL-01", assignments[0].AssignmentCode)
	require.Equal(t, int64(3), assignments[0].SubmissionCount)
	require.Equal(t, int64(2), assignments[0].PassCount)
}
