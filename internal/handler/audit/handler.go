package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/triage-api/internal/handler"
	"github.com/jwalitptl/triage-api/internal/model"
)

// Service is the read side of the audit trail.
type Service interface {
	ListByActor(ctx context.Context, actorID string) ([]*model.AuditLog, error)
	ListByAction(ctx context.Context, action string) ([]*model.AuditLog, error)
}

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit")
	{
		audit.GET("/logs", h.ListLogs)
		audit.GET("/export", h.ExportLogs)
		audit.GET("/aggregate", h.GetAggregateStats)
	}
}

var errNoFilter = errors.New("actor_id or action is required")

// query filters by actor, action, or both. Patient-scoped trails are served
// under /patients/:id/audit.
func (h *Handler) query(c *gin.Context) ([]*model.AuditLog, error) {
	actor, action := c.Query("actor_id"), c.Query("action")
	ctx := c.Request.Context()
	switch {
	case actor != "":
		logs, err := h.service.ListByActor(ctx, actor)
		if err != nil || action == "" {
			return logs, err
		}
		kept := logs[:0]
		for _, l := range logs {
			if l.Action == action {
				kept = append(kept, l)
			}
		}
		return kept, nil
	case action != "":
		return h.service.ListByAction(ctx, action)
	default:
		return nil, errNoFilter
	}
}

func (h *Handler) list(c *gin.Context) ([]*model.AuditLog, bool) {
	logs, err := h.query(c)
	if errors.Is(err, errNoFilter) {
		handler.BadRequest(c, err)
		return nil, false
	}
	if err != nil {
		_ = c.Error(err)
		return nil, false
	}
	return logs, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	logs, ok := h.list(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

func (h *Handler) ExportLogs(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		handler.BadRequest(c, fmt.Errorf("unsupported format %q", format))
		return
	}
	logs, ok := h.list(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.%s", h.now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if format == "json" {
		c.JSON(http.StatusOK, logs)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)
	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "Actor ID", "Action", "Patient ID", "Created At", "Details"})
	for _, log := range logs {
		patientID := ""
		if log.PatientID != nil {
			patientID = *log.PatientID
		}
		_ = writer.Write([]string{
			log.ID,
			log.ActorID,
			log.Action,
			patientID,
			log.CreatedAt.Format(time.RFC3339),
			string(log.Details),
		})
	}
	writer.Flush()
}

type AggregateResponse struct {
	TotalLogs      int            `json:"total_logs"`
	ActionCounts   map[string]int `json:"action_counts"`
	ActorActivity  map[string]int `json:"actor_activity"`
	HourlyActivity map[int]int    `json:"hourly_activity"`
	TopPatients    []PatientCount `json:"top_patients"`
}

type PatientCount struct {
	PatientID string `json:"patient_id"`
	Count     int    `json:"count"`
}

const topPatients = 5

func (h *Handler) GetAggregateStats(c *gin.Context) {
	end := h.now()
	start := end.AddDate(0, 0, -7)
	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.BadRequest(c, fmt.Errorf("invalid start_date format: %w", err))
			return
		}
		start = t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.BadRequest(c, fmt.Errorf("invalid end_date format: %w", err))
			return
		}
		end = t
	}

	logs, ok := h.list(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(aggregate(logs, start, end)))
}

func aggregate(logs []*model.AuditLog, start, end time.Time) AggregateResponse {
	stats := AggregateResponse{
		ActionCounts:   make(map[string]int),
		ActorActivity:  make(map[string]int),
		HourlyActivity: make(map[int]int),
	}
	perPatient := make(map[string]int)
	for _, l := range logs {
		if l.CreatedAt.Before(start) || l.CreatedAt.After(end) {
			continue
		}
		stats.TotalLogs++
		stats.ActionCounts[l.Action]++
		stats.ActorActivity[l.ActorID]++
		stats.HourlyActivity[l.CreatedAt.UTC().Hour()]++
		if l.PatientID != nil {
			perPatient[*l.PatientID]++
		}
	}

	stats.TopPatients = make([]PatientCount, 0, len(perPatient))
	for id, n := range perPatient {
		stats.TopPatients = append(stats.TopPatients, PatientCount{PatientID: id, Count: n})
	}
	sort.Slice(stats.TopPatients, func(i, j int) bool {
		a, b := stats.TopPatients[i], stats.TopPatients[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.PatientID < b.PatientID
	})
	if len(stats.TopPatients) > topPatients {
		stats.TopPatients = stats.TopPatients[:topPatients]
	}
	return stats
}
