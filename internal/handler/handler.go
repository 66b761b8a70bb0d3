package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"car-report/internal/metrics"
	"car-report/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	Get(ctx context.Context, id uuid.UUID) (*models.Report, error)
	List(ctx context.Context, search string, limit int) ([]models.Report, error)
	ListByVIN(ctx context.Context, vin string) ([]models.Report, error)
	Cars(ctx context.Context) ([]models.Car, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	SetExportURL(ctx context.Context, id uuid.UUID, url string) error
	Delete(ctx context.Context, id uuid.UUID) ([]string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type ObjectStore interface {
	UploadFile(ctx context.Context, bucketName, objectName string, reader io.Reader, size int64, contentType string) (minio.UploadInfo, error)
	GetFileLink(ctx context.Context, bucketName, objectName string, expires time.Duration) (string, error)
	RemoveObjects(ctx context.Context, bucketName string, objectNames ...string) error
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type PDFGenerator interface {
	Generate(ctx context.Context, html string) ([]byte, error)
}

// Options carries the settings the handlers need from config.
type Options struct {
	CacheTTL time.Duration
	LinkTTL  time.Duration
	LogoURL  string
}

type Handler struct {
	repo      ReportRepository
	cache     Cache
	objects   ObjectStore
	publisher Publisher
	pdf       PDFGenerator
	metrics   *metrics.Metrics
	opts      Options
}

func NewHandler(repo ReportRepository, cache Cache, objects ObjectStore, publisher Publisher, pdf PDFGenerator, m *metrics.Metrics, opts Options) *Handler {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = 7 * 24 * time.Hour
	}
	return &Handler{
		repo:      repo,
		cache:     cache,
		objects:   objects,
		publisher: publisher,
		pdf:       pdf,
		metrics:   m,
		opts:      opts,
	}
}

// Register mounts the API on r. auth, when non-nil, guards the /api/v1 group.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	if auth != nil {
		api.Use(auth)
	}

	reports := api.Group("/reports")
	reports.POST("", h.CreateReport)
	reports.GET("", h.ListReports)
	reports.GET("/:id", h.GetReport)
	reports.DELETE("/:id", h.DeleteReport)
	reports.GET("/:id/html", h.DownloadHTML)
	reports.POST("/:id/pdf", h.ExportPDF)

	api.GET("/cars", h.ListCars)
	api.GET("/cars/:vin", h.CarHistory)
	api.POST("/parse", h.ParseResponse)
	api.POST("/logs", h.IngestLogs)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
