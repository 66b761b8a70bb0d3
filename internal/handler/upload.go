package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"car-report/internal/models"
	minioclient "car-report/internal/storage/minio"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	MaxUploadSize = 10 << 20 // 10MB per image
	MaxImages     = 20
)

var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
}

type UploadResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Images  []string `json:"images"`
	Message string   `json:"message"`
}

// CreateReport stores the uploaded screenshots and queues a report for them.
func (h *Handler) CreateReport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImages*MaxUploadSize+1<<20)

	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Failed to read multipart form")
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		badRequest(c, "At least one image is required")
		return
	}
	if len(files) > MaxImages {
		badRequest(c, fmt.Sprintf("At most %d images are allowed", MaxImages))
		return
	}

	contentTypes := make([]string, len(files))
	for i, header := range files {
		contentType, err := validateImage(header)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		contentTypes[i] = contentType
	}

	reportID := uuid.New()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	keys := make([]string, 0, len(files))
	labels := make([]string, 0, len(files))
	for i, header := range files {
		objectName := fmt.Sprintf("%s/%02d%s", reportID, i+1, strings.ToLower(filepath.Ext(header.Filename)))
		if err := h.upload(ctx, header, objectName, contentTypes[i]); err != nil {
			h.removeImages(ctx, keys)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file " + header.Filename})
			log.Error().Err(err).Str("file", header.Filename).Msg("Upload failed")
			return
		}
		keys = append(keys, objectName)
		labels = append(labels, header.Filename)
	}

	report := &models.Report{ID: reportID, Status: models.ReportStatusPending, ImageKeys: keys}
	if err := h.repo.Create(ctx, report); err != nil {
		h.removeImages(ctx, keys)
		respondError(c, err)
		return
	}

	msgBytes, err := json.Marshal(models.TaskMessage{
		ReportID:   reportID.String(),
		BucketName: minioclient.ImagesBucket,
		ObjectKeys: keys,
		Labels:     labels,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.publisher.Publish(ctx, msgBytes); err != nil {
		if failErr := h.repo.Fail(ctx, reportID, "failed to queue report"); failErr != nil {
			log.Error().Err(failErr).Str("report_id", reportID.String()).Msg("Failed to mark report as failed")
		}
		log.Error().Err(err).Str("report_id", reportID.String()).Msg("Failed to publish task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue report"})
		return
	}

	log.Info().Str("report_id", reportID.String()).Int("images", len(keys)).Msg("Report queued")
	c.JSON(http.StatusCreated, UploadResponse{
		ID:      reportID.String(),
		Status:  string(models.ReportStatusPending),
		Images:  labels,
		Message: "Images uploaded successfully and queued for processing",
	})
}

// validateImage checks the extension and size and returns the content type
// to store the object with.
func validateImage(header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := allowedTypes[ext]
	if !ok {
		return "", fmt.Errorf("%s: only jpg, jpeg, png, webp, bmp and gif images are allowed", header.Filename)
	}
	if header.Size > MaxUploadSize {
		return "", fmt.Errorf("%s: file exceeds %d MB", header.Filename, MaxUploadSize>>20)
	}
	if header.Size == 0 {
		return "", fmt.Errorf("%s: file is empty", header.Filename)
	}

	// Trust the declared type only when it agrees with the extension.
	if declared := header.Header.Get("Content-Type"); strings.HasPrefix(declared, contentType) {
		return declared, nil
	}
	return contentType, nil
}

func (h *Handler) upload(ctx context.Context, header *multipart.FileHeader, objectName, contentType string) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = h.objects.UploadFile(ctx, minioclient.ImagesBucket, objectName, file, header.Size, contentType)
	return err
}

func (h *Handler) removeImages(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := h.objects.RemoveObjects(ctx, minioclient.ImagesBucket, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("Failed to remove uploaded images")
	}
}
