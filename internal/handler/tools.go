package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"car-report/internal/reportparse"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxParseBody = 1 << 20
	maxLogBody   = 100 << 10
)

type ParseResult struct {
	Outcome  string              `json:"outcome"`
	Record   json.RawMessage     `json:"record"`
	Summary  reportparse.Summary `json:"summary"`
	Repaired string              `json:"repaired,omitempty"`
	Error    string              `json:"error,omitempty"`
	Issues   []reportparse.Issue `json:"issues,omitempty"`
}

// ParseResponse runs the response parser over a raw model completion sent as
// the request body. Operators use it to recover stored raw text.
func (h *Handler) ParseResponse(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxParseBody+1))
	if err != nil {
		badRequest(c, "Failed to read request body")
		return
	}
	if len(body) > maxParseBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Body too large"})
		return
	}

	result := reportparse.Parse(string(body))
	record, err := result.Record.JSON()
	if err != nil {
		respondError(c, err)
		return
	}

	resp := ParseResult{
		Outcome: result.Outcome(),
		Record:  record,
		Summary: reportparse.SummaryOf(result.Record),
	}
	if result.WasRepaired {
		resp.Repaired = result.Repaired
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if !result.Degraded {
		report, _ := reportparse.Decode(result.Record)
		resp.Issues = reportparse.Validate(report)
	}
	if h.metrics != nil {
		h.metrics.ParseOutcome(result.Outcome())
	}

	c.JSON(http.StatusOK, resp)
}

type ClientLog struct {
	Level   string         `json:"level" binding:"omitempty,oneof=debug info warn warning error fatal"`
	Context string         `json:"context" binding:"max=200"`
	Message string         `json:"message" binding:"required,max=10000"`
	Data    map[string]any `json:"data"`
}

// IngestLogs writes frontend log entries into the service log.
func (h *Handler) IngestLogs(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxLogBody)

	var entry ClientLog
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, "Invalid log entry: "+err.Error())
		return
	}

	event := log.WithLevel(clientLevel(entry.Level)).
		Str("source", "client").
		Str("client_ip", c.ClientIP())
	if entry.Context != "" {
		event = event.Str("context", entry.Context)
	}
	if len(entry.Data) > 0 {
		event = event.Interface("data", entry.Data)
	}
	event.Msg(entry.Message)

	c.Status(http.StatusNoContent)
}

// clientLevel maps a client level name to zerolog. A client cannot stop the
// server, so fatal is logged as error.
func clientLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "fatal":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
