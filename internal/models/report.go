package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is a persisted vehicle report. Summary columns (VIN, Brand, ...) are
// projected from Record so the list views never have to decode JSON.
type Report struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Status    ReportStatus    `json:"status" db:"status"`
	VIN       string          `json:"vin" db:"vin"`
	Brand     string          `json:"brand" db:"brand"`
	Model     string          `json:"model" db:"model"`
	Rating    string          `json:"rating,omitempty" db:"rating"`
	Mileage   string          `json:"mileage,omitempty" db:"mileage"`
	Record    json.RawMessage `json:"record,omitempty" db:"record"`
	Degraded  bool            `json:"degraded" db:"degraded"`
	HTML      string          `json:"-" db:"html"`
	ImageKeys []string        `json:"image_keys" db:"image_keys"`
	ExportURL string          `json:"export_url,omitempty" db:"export_url"`
	Error     string          `json:"error,omitempty" db:"error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Car groups the reports that share a VIN.
type Car struct {
	VIN          string    `json:"vin"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Mileage      string    `json:"mileage,omitempty"`
	Rating       string    `json:"rating,omitempty"`
	ReportCount  int       `json:"report_count"`
	LastReportAt time.Time `json:"last_report_at"`
}

// TaskMessage is the queue payload that asks a worker to build a report.
type TaskMessage struct {
	ReportID   string   `json:"report_id"`
	BucketName string   `json:"bucket_name"`
	ObjectKeys []string `json:"object_keys"`
	Labels     []string `json:"labels"`
}
