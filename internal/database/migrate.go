package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

const studentSummaryViewSQL = `
SELECT
	student_id,
	MAX(student_name) AS student_name,
	COUNT(*) AS submission_count,
	AVG(total_score) AS average_score,
	MAX(total_score) AS best_score,
	SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END) AS pass_count,
	MAX(submitted_at) AS last_submitted_at
FROM submission_records
GROUP BY student_id`

const assignmentSummaryViewSQL = `
SELECT
	assignment_code,
	COUNT(*) AS submission_count,
	AVG(total_score) AS average_score,
	MAX(total_score) AS max_score,
	MIN(total_score) AS min_score,
	SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END) AS pass_count,
	SUM(CASE WHEN status = 'FAIL' THEN 1 ELSE 0 END) AS fail_count,
	SUM(CASE WHEN status = 'FLAG' THEN 1 ELSE 0 END) AS flag_count
FROM submission_records
GROUP BY assignment_code`

// Migrate creates the submission table and the two reporting views.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SubmissionRecord{}); err != nil {
		return fmt.Errorf("migrate submission records: %w", err)
	}

	views := []struct {
		name string
		sql  string
	}{
		{name: models.StudentScoreSummary{}.TableName(), sql: studentSummaryViewSQL},
		{name: models.AssignmentScoreSummary{}.TableName(), sql: assignmentSummaryViewSQL},
	}

	for _, view := range views {
		if err := createView(db, view.name, view.sql); err != nil {
			return err
		}
	}

	return nil
}

func createView(db *gorm.DB, name, query string) error {
	var statement string
	switch db.Dialector.Name() {
	case "sqlite":
		// SQLite has no CREATE OR REPLACE VIEW.
		if err := db.Exec(fmt.Sprintf("DROP VIEW IF EXISTS %s", name)).Error; err != nil {
			return fmt.Errorf("drop view %s: %w", name, err)
		}
		statement = fmt.Sprintf("CREATE VIEW %s AS %s", name, query)
	default:
		statement = fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", name, query)
	}

	if err := db.Exec(statement).Error; err != nil {
		return fmt.Errorf("create view %s: %w", name, err)
	}

	return nil
}
