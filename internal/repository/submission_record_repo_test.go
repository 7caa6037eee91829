package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/dsa-autograder/internal/database"
	"github.com/noah-isme/dsa-autograder/internal/models"
)

func setupRecordTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func intPtr(v int) *int {
	return &v
}

func seedRecords(t *testing.T, repo SubmissionRecordRepository) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	records := []models.SubmissionRecord{
		{StudentID: "2151001", StudentName: "Nguyen Van A", AssignmentCode: "sorting", Filename: "bubble.py", TotalScore: intPtr(85), Status: models.SubmissionStatusPass, SubmittedAt: base},
		{StudentID: "2151001", StudentName: "Nguyen Van A", AssignmentCode: "graphs", Filename: "bfs.py", TotalScore: intPtr(40), Status: models.SubmissionStatusFail, SubmittedAt: base.Add(time.Hour)},
		{StudentID: "2151002", StudentName: "Tran Thi B", AssignmentCode: "sorting", Filename: "merge.py", TotalScore: intPtr(65), Status: models.SubmissionStatusFlag, SubmittedAt: base.Add(2 * time.Hour)},
		{StudentID: "2151002", StudentName: "Tran Thi B", AssignmentCode: "sorting", Filename: "quick.py", Status: models.SubmissionStatusPending, SubmittedAt: base.Add(3 * time.Hour)},
	}
	for i := range records {
		require.NoError(t, repo.Create(context.Background(), &records[i]))
		require.NotZero(t, records[i].ID)
	}
}

func TestSubmissionRecordRepositoryListings(t *testing.T) {
	repo := NewSubmissionRecordRepository(setupRecordTestDB(t))
	seedRecords(t, repo)
	ctx := context.Background()

	byStudent, err := repo.ListByStudent(ctx, "2151001")
	require.NoError(t, err)
	require.Len(t, byStudent, 2)
	require.Equal(t, "bfs.py", byStudent[0].Filename, "newest submission first")

	byAssignment, err := repo.ListByAssignment(ctx, "sorting")
	require.NoError(t, err)
	require.Len(t, byAssignment, 3)
	require.Equal(t, "bubble.py", byAssignment[0].Filename)
	require.Equal(t, "merge.py", byAssignment[1].Filename)
	require.Equal(t, "quick.py", byAssignment[2].Filename, "unscored records sort last")
	require.Nil(t, byAssignment[2].TotalScore)
}

func TestSubmissionRecordRepositoryStats(t *testing.T) {
	repo := NewSubmissionRecordRepository(setupRecordTestDB(t))
	seedRecords(t, repo)
	ctx := context.Background()

	all, err := repo.Stats(ctx, "")
	require.NoError(t, err)
	require.Equal(t, int64(4), all.TotalSubmissions)
	require.NotNil(t, all.AverageScore)
	require.InDelta(t, 63.33, *all.AverageScore, 0.01)
	require.Equal(t, 85, *all.MaxScore)
	require.Equal(t, 40, *all.MinScore)
	require.Equal(t, int64(1), all.Passed)
	require.Equal(t, int64(1), all.Failed)
	require.Equal(t, int64(1), all.Flagged)

	empty, err := repo.Stats(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, int64(0), empty.TotalSubmissions)
	require.Nil(t, empty.AverageScore)
}

func TestSubmissionRecordRepositorySummaryViews(t *testing.T) {
	repo := NewSubmissionRecordRepository(setupRecordTestDB(t))
	seedRecords(t, repo)
	ctx := context.Background()

	students, err := repo.StudentSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, students, 2)
	require.Equal(t, "2151001", students[0].StudentID)
	require.Equal(t, int64(2), students[0].SubmissionCount)
	require.Equal(t, 85, *students[0].BestScore)
	require.Equal(t, int64(1), students[0].PassCount)
	require.NotNil(t, students[0].LastSubmittedAt)
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), students[0].LastSubmittedAt.UTC())

	assignments, err := repo.AssignmentSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	sorting := assignments[1]
	require.Equal(t, "sorting", sorting.AssignmentCode)
	require.Equal(t, int64(3), sorting.SubmissionCount)
	require.Equal(t, 85, *sorting.MaxScore)
	require.Equal(t, 65, *sorting.MinScore)
	require.InDelta(t, 75.0, *sorting.AverageScore, 0.001)
	require.Equal(t, int64(1), sorting.PassCount)
	require.Equal(t, int64(0), sorting.FailCount)
	require.Equal(t, int64(1), sorting.FlagCount)
}
