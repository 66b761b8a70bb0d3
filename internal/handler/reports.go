package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"car-report/internal/apperr"
	"car-report/internal/models"
	minioclient "car-report/internal/storage/minio"
	redisclient "car-report/pkg/database/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

func parseReportID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid report ID format")
		return uuid.Nil, false
	}
	return id, true
}

// GetReport serves a report from Redis when cached. Only reports in a final
// state are cached; the worker invalidates the key when it finishes.
func (h *Handler) GetReport(c *gin.Context) {
	reportID, ok := parseReportID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	cacheKey := redisclient.ReportKey(reportID.String())
	cached, err := h.cache.Get(ctx, cacheKey)
	switch {
	case err == nil:
		var report models.Report
		if err := json.Unmarshal([]byte(cached), &report); err == nil {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, report)
			return
		}
		log.Warn().Str("key", cacheKey).Msg("Dropping unreadable cache entry")
	case !errors.Is(err, redisclient.ErrNotFound):
		log.Warn().Err(err).Msg("Cache lookup failed")
	}

	report, err := h.repo.Get(ctx, reportID)
	if err != nil {
		respondError(c, err)
		return
	}

	if report.Status == models.ReportStatusCompleted || report.Status == models.ReportStatusFailed {
		if data, err := json.Marshal(report); err == nil {
			if err := h.cache.Set(ctx, cacheKey, string(data), h.opts.CacheTTL); err != nil {
				log.Warn().Err(err).Msg("Failed to cache report")
			}
		}
	}

	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, report)
}

// ListReports returns reports newest first; ?q= filters by VIN or brand.
func (h *Handler) ListReports(c *gin.Context) {
	reports, err := h.repo.List(c.Request.Context(), c.Query("q"), cast.ToInt(c.Query("limit")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

func (h *Handler) DeleteReport(c *gin.Context) {
	reportID, ok := parseReportID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	keys, err := h.repo.Delete(ctx, reportID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.removeImages(ctx, keys)
	h.invalidate(ctx, reportID)

	log.Info().Str("report_id", reportID.String()).Msg("Report deleted")
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCars(c *gin.Context) {
	cars, err := h.repo.Cars(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cars": cars, "count": len(cars)})
}

func (h *Handler) CarHistory(c *gin.Context) {
	vin := strings.TrimSpace(c.Param("vin"))
	if vin == "" {
		badRequest(c, "VIN is required")
		return
	}

	reports, err := h.repo.ListByVIN(c.Request.Context(), vin)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(reports) == 0 {
		respondError(c, apperr.NotFound("no reports for VIN "+vin, nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"vin": vin, "reports": reports, "count": len(reports)})
}

func (h *Handler) invalidate(ctx context.Context, id uuid.UUID) {
	if err := h.cache.Delete(ctx, redisclient.ReportKey(id.String())); err != nil {
		log.Warn().Err(err).Str("report_id", id.String()).Msg("Failed to invalidate cache")
	}
}

// objectLink presigns a link to an export object.
func (h *Handler) objectLink(ctx context.Context, objectName string) (string, error) {
	return h.objects.GetFileLink(ctx, minioclient.ExportsBucket, objectName, h.opts.LinkTTL)
}
