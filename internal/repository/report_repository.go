package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digkill/web3analysis/internal/database"
	"github.com/digkill/web3analysis/internal/models"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `r.id, r.project_name, r.summary, r.content, r.image_url, r.user_address, r.created_at`

func (r *ReportRepository) Insert(ctx context.Context, report *models.Report) (*models.Report, error) {
	const query = `
INSERT INTO reports (project_name, summary, content, image_url, user_address, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	content, err := json.Marshal(report.Content)
	if err != nil {
		return nil, fmt.Errorf("encode report content: %w", err)
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, report.ProjectName, report.Summary, content, report.ImageURL, report.Address, report.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("report last insert id: %w", err)
	}
	saved := *report
	saved.ID = id
	return &saved, nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	const query = `SELECT ` + reportColumns + ` FROM reports r WHERE r.id = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

func (r *ReportRepository) List(ctx context.Context, limit int) ([]models.Report, error) {
	const query = `SELECT ` + reportColumns + ` FROM reports r ORDER BY r.created_at DESC, r.id DESC LIMIT ?`
	return r.query(ctx, "list reports", query, limit)
}

// Search matches term as a case-insensitive substring of the project name.
func (r *ReportRepository) Search(ctx context.Context, term string, limit int) ([]models.Report, error) {
	const query = `
SELECT ` + reportColumns + ` FROM reports r
WHERE LOWER(r.project_name) LIKE ? ESCAPE '\\'
ORDER BY r.created_at DESC, r.id DESC LIMIT ?`
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return r.query(ctx, "search reports", query, pattern, limit)
}

// FindRecent returns the newest report the user generated for project at or after since.
func (r *ReportRepository) FindRecent(ctx context.Context, projectName, address string, since time.Time) (*models.Report, error) {
	const query = `
SELECT ` + reportColumns + ` FROM reports r
WHERE r.project_name = ? AND r.user_address = ? AND r.created_at >= ?
ORDER BY r.created_at DESC, r.id DESC LIMIT 1`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, projectName, address, since)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find recent report: %w", err)
	}
	return report, nil
}

// GrantAccess records an access grant and reports whether it was new.
func (r *ReportRepository) GrantAccess(ctx context.Context, address string, reportID int64, now time.Time) (bool, error) {
	const query = `INSERT IGNORE INTO user_reports (user_address, report_id, created_at) VALUES (?, ?, ?)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, address, reportID, now)
	if err != nil {
		return false, fmt.Errorf("grant report access: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grant rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ReportRepository) HasAccess(ctx context.Context, address string, reportID int64) (bool, error) {
	const query = `SELECT COUNT(*) FROM user_reports WHERE user_address = ? AND report_id = ?`
	var count int
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, address, reportID).Scan(&count); err != nil {
		return false, fmt.Errorf("check report access: %w", err)
	}
	return count > 0, nil
}

func (r *ReportRepository) ListAccessible(ctx context.Context, address string) ([]models.Report, error) {
	const query = `
SELECT ` + reportColumns + ` FROM reports r
JOIN user_reports ur ON ur.report_id = r.id
WHERE ur.user_address = ?
ORDER BY ur.created_at DESC, r.id DESC`
	return r.query(ctx, "list accessible reports", query, address)
}

func (r *ReportRepository) query(ctx context.Context, op, query string, args ...any) ([]models.Report, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	var content []byte
	if err := row.Scan(&report.ID, &report.ProjectName, &report.Summary, &content, &report.ImageURL, &report.Address, &report.CreatedAt); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &report.Content); err != nil {
			return nil, fmt.Errorf("decode report %d content: %w", report.ID, err)
		}
	}
	return &report, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
