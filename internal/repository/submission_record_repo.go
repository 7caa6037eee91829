package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

// ScoreStats aggregates score statistics across submission records.
type ScoreStats struct {
	TotalSubmissions int64
	AverageScore     *float64
	MaxScore         *int
	MinScore         *int
	Passed           int64
	Failed           int64
	Flagged          int64
}

// SubmissionRecordRepository persists graded submissions and reads the reporting views.
type SubmissionRecordRepository interface {
	Create(ctx context.Context, record *models.SubmissionRecord) error
	ListByStudent(ctx context.Context, studentID string) ([]models.SubmissionRecord, error)
	ListByAssignment(ctx context.Context, assignmentCode string) ([]models.SubmissionRecord, error)
	ListByJob(ctx context.Context, jobID string) ([]models.SubmissionRecord, error)
	Stats(ctx context.Context, assignmentCode string) (ScoreStats, error)
	StudentSummaries(ctx context.Context) ([]models.StudentScoreSummary, error)
	AssignmentSummaries(ctx context.Context) ([]models.AssignmentScoreSummary, error)
}

type submissionRecordRepository struct {
	db *gorm.DB
}

// NewSubmissionRecordRepository instantiates the repository.
func NewSubmissionRecordRepository(db *gorm.DB) SubmissionRecordRepository {
	return &submissionRecordRepository{db: db}
}

func (r *submissionRecordRepository) Create(ctx context.Context, record *models.SubmissionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *submissionRecordRepository) ListByStudent(ctx context.Context, studentID string) ([]models.SubmissionRecord, error) {
	var records []models.SubmissionRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("submitted_at DESC").
		Order("id DESC").
		Find(&records).Error
	return records, err
}

func (r *submissionRecordRepository) ListByAssignment(ctx context.Context, assignmentCode string) ([]models.SubmissionRecord, error) {
	var records []models.SubmissionRecord
	err := r.db.WithContext(ctx).
		Where("assignment_code = ?", assignmentCode).
		Order("total_score IS NULL").
		Order("total_score DESC").
		Order("id ASC").
		Find(&records).Error
	return records, err
}

func (r *submissionRecordRepository) ListByJob(ctx context.Context, jobID string) ([]models.SubmissionRecord, error) {
	var records []models.SubmissionRecord
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

func (r *submissionRecordRepository) Stats(ctx context.Context, assignmentCode string) (ScoreStats, error) {
	type statsRow struct {
		TotalSubmissions int64
		AverageScore     *float64
		MaxScore         *int
		MinScore         *int
		Passed           int64
		Failed           int64
		Flagged          int64
	}

	query := r.db.WithContext(ctx).
		Model(&models.SubmissionRecord{}).
		Select(`COUNT(*) AS total_submissions,
			AVG(total_score) AS average_score,
			MAX(total_score) AS max_score,
			MIN(total_score) AS min_score,
			COALESCE(SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END), 0) AS passed,
			COALESCE(SUM(CASE WHEN status = 'FAIL' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN status = 'FLAG' THEN 1 ELSE 0 END), 0) AS flagged`)

	if assignmentCode != "" {
		query = query.Where("assignment_code = ?", assignmentCode)
	}

	var row statsRow
	if err := query.Scan(&row).Error; err != nil {
		return ScoreStats{}, err
	}

	return ScoreStats(row), nil
}

func (r *submissionRecordRepository) StudentSummaries(ctx context.Context) ([]models.StudentScoreSummary, error) {
	type summaryRow struct {
		StudentID       string
		StudentName     string
		SubmissionCount int64
		AverageScore    *float64
		BestScore       *int
		PassCount       int64
		LastSubmittedAt viewTime
	}

	var rows []summaryRow
	err := r.db.WithContext(ctx).
		Table(models.StudentScoreSummary{}.TableName()).
		Order("student_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]models.StudentScoreSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.StudentScoreSummary{
			StudentID:       row.StudentID,
			StudentName:     row.StudentName,
			SubmissionCount: row.SubmissionCount,
			AverageScore:    row.AverageScore,
			BestScore:       row.BestScore,
			PassCount:       row.PassCount,
			LastSubmittedAt: row.LastSubmittedAt.Time,
		})
	}

	return summaries, nil
}

func (r *submissionRecordRepository) AssignmentSummaries(ctx context.Context) ([]models.AssignmentScoreSummary, error) {
	var summaries []models.AssignmentScoreSummary
	err := r.db.WithContext(ctx).
		Table(models.AssignmentScoreSummary{}.TableName()).
		Order("assignment_code ASC").
		Scan(&summaries).Error
	return summaries, err
}

// viewTime scans aggregate timestamps. SQLite returns MAX(datetime) as text
// because the computed view column has no declared type.
type viewTime struct {
	Time *time.Time
}

var viewTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (v *viewTime) Scan(value interface{}) error {
	switch typed := value.(type) {
	case nil:
		v.Time = nil
		return nil
	case time.Time:
		t := typed
		v.Time = &t
		return nil
	case []byte:
		return v.parse(string(typed))
	case string:
		return v.parse(typed)
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
}

func (v viewTime) Value() (driver.Value, error) {
	if v.Time == nil {
		return nil, nil
	}
	return *v.Time, nil
}

func (v *viewTime) parse(raw string) error {
	for _, layout := range viewTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			v.Time = &parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", raw)
}
