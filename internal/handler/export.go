package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"car-report/internal/models"
	"car-report/internal/render"
	"car-report/internal/reportparse"
	minioclient "car-report/internal/storage/minio"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ExportResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	ExportURL string `json:"export_url"`
}

// completedReport loads a report and returns it with its standalone document.
// Reports stored without a rendered body are rendered again from their
// record. Anything not completed is rejected with 409.
func (h *Handler) completedReport(ctx context.Context, c *gin.Context, id uuid.UUID) (*models.Report, string, bool) {
	report, err := h.repo.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	if report.Status != models.ReportStatusCompleted || (report.HTML == "" && len(report.Record) == 0) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":  "Report is not ready",
			"status": report.Status,
		})
		return nil, "", false
	}

	body := report.HTML
	if body == "" {
		rec, err := reportparse.RecordFromJSON(report.Record, report.Degraded)
		if err != nil {
			log.Error().Err(err).Str("report_id", id.String()).Msg("Stored record is not valid JSON")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
			return nil, "", false
		}
		if body, err = render.HTML(rec, render.Branding{LogoURL: h.opts.LogoURL}); err != nil {
			respondError(c, err)
			return nil, "", false
		}
	}

	doc, err := render.Document(body, documentTitle(report))
	if err != nil {
		respondError(c, err)
		return nil, "", false
	}
	return report, doc, true
}

// DownloadHTML returns the report as a standalone HTML document.
func (h *Handler) DownloadHTML(c *gin.Context) {
	reportID, ok := parseReportID(c)
	if !ok {
		return
	}
	report, doc, ok := h.completedReport(c.Request.Context(), c, reportID)
	if !ok {
		return
	}

	fileName := render.ExportFileName(report.VIN, report.CreatedAt)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

// ExportPDF renders the report through the PDF service, stores the file in
// the exports bucket and records a presigned link to it.
func (h *Handler) ExportPDF(c *gin.Context) {
	reportID, ok := parseReportID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	report, doc, ok := h.completedReport(ctx, c, reportID)
	if !ok {
		return
	}

	pdf, err := h.pdf.Generate(ctx, doc)
	if err != nil {
		respondError(c, err)
		return
	}

	fileName := strings.TrimSuffix(render.ExportFileName(report.VIN, report.CreatedAt), ".html") + ".pdf"
	objectName := reportID.String() + "/" + fileName
	if _, err := h.objects.UploadFile(ctx, minioclient.ExportsBucket, objectName, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf"); err != nil {
		log.Error().Err(err).Str("report_id", reportID.String()).Msg("Failed to store PDF export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store PDF export"})
		return
	}

	link, err := h.objectLink(ctx, objectName)
	if err != nil {
		log.Error().Err(err).Str("report_id", reportID.String()).Msg("Failed to presign PDF export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create export link"})
		return
	}
	if err := h.repo.SetExportURL(ctx, reportID, link); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(ctx, reportID)

	log.Info().Str("report_id", reportID.String()).Int("bytes", len(pdf)).Msg("PDF exported")
	c.JSON(http.StatusOK, ExportResponse{ID: reportID.String(), FileName: fileName, ExportURL: link})
}

func documentTitle(report *models.Report) string {
	title := strings.TrimSpace(report.Brand + " " + report.Model)
	if report.VIN != "" {
		title += " " + report.VIN
	}
	return strings.TrimSpace(title)
}
