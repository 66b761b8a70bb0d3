package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"car-report/internal/apperr"
	"car-report/internal/models"
	"car-report/internal/reportparse"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500

	// listColumns skips the heavy html and record columns.
	listColumns = `id, status, vin, brand, model, rating, mileage, degraded, image_keys, export_url, error, created_at, updated_at`
	fullColumns = `id, status, vin, brand, model, rating, mileage, degraded, image_keys, export_url, error, created_at, updated_at, record, html`
)

// Reports stores vehicle reports in Postgres.
type Reports struct {
	pool *pgxpool.Pool
}

func NewReports(pool *pgxpool.Pool) *Reports {
	return &Reports{pool: pool}
}

// Create inserts a pending report.
func (r *Reports) Create(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (id, status, image_keys, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING vin, brand, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, report.ID, report.Status, report.ImageKeys).
		Scan(&report.VIN, &report.Brand, &report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return apperr.Storage("failed to insert report", err)
	}
	return nil
}

// Get returns the full report including record and html.
func (r *Reports) Get(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	query := `SELECT ` + fullColumns + ` FROM reports WHERE id = $1`

	var report models.Report
	err := scanReport(r.pool.QueryRow(ctx, query, id), &report, &report.Record, &report.HTML)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("report %s not found", id), nil)
	}
	if err != nil {
		return nil, apperr.Storage("failed to get report", err)
	}
	return &report, nil
}

// List returns reports newest first. A non-empty query matches VIN or brand
// case-insensitively.
func (r *Reports) List(ctx context.Context, search string, limit int) ([]models.Report, error) {
	query := `
		SELECT ` + listColumns + `
		FROM reports
		WHERE $1 = '' OR vin ILIKE '%' || $1 || '%' OR brand ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, escapeLike(strings.TrimSpace(search)), clampLimit(limit))
}

// ListByVIN returns every report for one car, newest first.
func (r *Reports) ListByVIN(ctx context.Context, vin string) ([]models.Report, error) {
	query := `
		SELECT ` + listColumns + `
		FROM reports
		WHERE vin = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, vin, maxListLimit)
}

func (r *Reports) list(ctx context.Context, query string, args ...any) ([]models.Report, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("failed to list reports", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		var report models.Report
		if err := scanReport(rows, &report); err != nil {
			return nil, apperr.Storage("failed to scan report", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("failed to iterate reports", err)
	}
	return reports, nil
}

// Cars groups completed reports by VIN. Brand, model, mileage and rating come
// from the newest report of each car.
func (r *Reports) Cars(ctx context.Context) ([]models.Car, error) {
	query := `
		SELECT vin, brand, model, mileage, rating, report_count, last_report_at
		FROM (
			SELECT DISTINCT ON (vin)
				vin, brand, model, mileage, rating,
				COUNT(*) OVER (PARTITION BY vin) AS report_count,
				MAX(created_at) OVER (PARTITION BY vin) AS last_report_at
			FROM reports
			WHERE status = $1
			ORDER BY vin, created_at DESC
		) cars
		ORDER BY last_report_at DESC
	`
	rows, err := r.pool.Query(ctx, query, models.ReportStatusCompleted)
	if err != nil {
		return nil, apperr.Storage("failed to list cars", err)
	}
	defer rows.Close()

	cars := make([]models.Car, 0)
	for rows.Next() {
		var car models.Car
		if err := rows.Scan(&car.VIN, &car.Brand, &car.Model, &car.Mileage, &car.Rating, &car.ReportCount, &car.LastReportAt); err != nil {
			return nil, apperr.Storage("failed to scan car", err)
		}
		cars = append(cars, car)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("failed to iterate cars", err)
	}
	return cars, nil
}

func (r *Reports) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error {
	return r.exec(ctx, "update report status",
		`UPDATE reports SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

// Complete stores the parsed record, its summary columns and rendered html.
func (r *Reports) Complete(ctx context.Context, id uuid.UUID, summary reportparse.Summary, record []byte, degraded bool, html string) error {
	query := `
		UPDATE reports
		SET status = $1, vin = $2, brand = $3, model = $4, rating = $5, mileage = $6,
			record = $7, degraded = $8, html = $9, error = '', updated_at = NOW()
		WHERE id = $10
	`
	return r.exec(ctx, "complete report", query,
		models.ReportStatusCompleted, summary.VIN, summary.Brand, summary.Model, summary.Rating, summary.Mileage,
		record, degraded, html, id)
}

func (r *Reports) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return r.exec(ctx, "fail report",
		`UPDATE reports SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`,
		models.ReportStatusFailed, reason, id)
}

func (r *Reports) SetExportURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.exec(ctx, "set export url",
		`UPDATE reports SET export_url = $1, updated_at = NOW() WHERE id = $2`, url, id)
}

// Delete removes a report and returns its image keys so the caller can clean
// up storage.
func (r *Reports) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var keys []string
	err := r.pool.QueryRow(ctx, `DELETE FROM reports WHERE id = $1 RETURNING image_keys`, id).Scan(&keys)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("report %s not found", id), nil)
	}
	if err != nil {
		return nil, apperr.Storage("failed to delete report", err)
	}
	return keys, nil
}

func (r *Reports) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Storage("failed to "+op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("%s: report not found", op), nil)
	}
	return nil
}

// scanReport reads listColumns into report, followed by any extra targets.
func scanReport(row pgx.Row, report *models.Report, extra ...any) error {
	dest := []any{
		&report.ID, &report.Status, &report.VIN, &report.Brand, &report.Model,
		&report.Rating, &report.Mileage, &report.Degraded, &report.ImageKeys,
		&report.ExportURL, &report.Error, &report.CreatedAt, &report.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
