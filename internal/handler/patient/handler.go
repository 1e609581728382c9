package patient

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/triage-api/internal/handler"
	"github.com/jwalitptl/triage-api/internal/middleware"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/service/priority"
	"github.com/jwalitptl/triage-api/internal/service/triage"
	"github.com/jwalitptl/triage-api/pkg/result"
)

// Service is the use-case surface the HTTP API needs.
type Service interface {
	RegisterPatient(ctx context.Context, cmd triage.RegisterPatientCommand) result.Result[*model.Patient]
	RecordVitals(ctx context.Context, patientID string, vitals model.VitalSigns, by string) result.Result[*model.Patient]
	ChangeStatus(ctx context.Context, patientID string, status model.Status, reason, by string) result.Result[*model.Patient]
	AcceptCase(ctx context.Context, patientID, doctorID string) result.Result[*model.Patient]
	ReassignCase(ctx context.Context, patientID, doctorID, reason, by string) result.Result[*model.Patient]
	OverridePriority(ctx context.Context, patientID string, manual int, reason, by string) result.Result[*model.Patient]
	ClearPriorityOverride(ctx context.Context, patientID, reason, by string) result.Result[*model.Patient]
	AddComment(ctx context.Context, patientID, authorID, content string, category model.CommentCategory) result.Result[model.Comment]
	GetPatient(ctx context.Context, patientID string) result.Result[*model.Patient]
	ListQueue(ctx context.Context) result.Result[[]*model.Patient]
	GetDoctorPatients(ctx context.Context, doctorID string) result.Result[[]*model.Patient]
	GetAuditTrail(ctx context.Context, patientID string) result.Result[[]*model.AuditLog]
	EvaluateVitals(ctx context.Context, vitals model.VitalSigns, manual *int) result.Result[priority.Assessment]
}

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.RegisterPatient)
		patients.GET("", h.ListQueue)
		patients.GET("/:id", h.GetPatient)
		patients.POST("/:id/vitals", h.RecordVitals)
		patients.POST("/:id/status", h.ChangeStatus)
		patients.POST("/:id/accept", h.AcceptCase)
		patients.POST("/:id/reassign", h.ReassignCase)
		patients.PUT("/:id/priority", h.OverridePriority)
		patients.DELETE("/:id/priority", h.ClearPriorityOverride)
		patients.POST("/:id/comments", h.AddComment)
		patients.GET("/:id/audit", h.GetAuditTrail)
	}
	r.GET("/doctors/:id/patients", h.GetDoctorPatients)
	r.POST("/triage/evaluate", h.EvaluateVitals)
}

func (h *Handler) RegisterPatient(c *gin.Context) {
	var req RegisterPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}

	by := middleware.StaffID(c)
	if by == "" {
		by = req.RegisteredBy
	}
	res := h.service.RegisterPatient(c.Request.Context(), triage.RegisterPatientCommand{
		Name:           req.Name,
		Age:            req.Age,
		Gender:         model.Gender(req.Gender),
		Symptoms:       req.Symptoms,
		Vitals:         req.Vitals.toModel(by),
		ManualPriority: req.ManualPriority,
		RegisteredBy:   by,
	})
	handler.Respond(c, http.StatusCreated, res, h.view)
}

func (h *Handler) ListQueue(c *gin.Context) {
	handler.Respond(c, http.StatusOK, h.service.ListQueue(c.Request.Context()), h.views)
}

func (h *Handler) GetPatient(c *gin.Context) {
	handler.Respond(c, http.StatusOK, h.service.GetPatient(c.Request.Context(), c.Param("id")), h.view)
}

func (h *Handler) RecordVitals(c *gin.Context) {
	var req VitalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	by := middleware.StaffID(c)
	res := h.service.RecordVitals(c.Request.Context(), c.Param("id"), req.toModel(by), by)
	handler.Respond(c, http.StatusOK, res, h.view)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	res := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), model.Status(req.Status), req.Reason, middleware.StaffID(c))
	handler.Respond(c, http.StatusOK, res, h.view)
}

// AcceptCase assigns the case to the body's doctor_id, defaulting to the caller.
func (h *Handler) AcceptCase(c *gin.Context) {
	var req AcceptCaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BadRequest(c, err)
			return
		}
	}
	doctorID := req.DoctorID
	if doctorID == "" {
		doctorID = middleware.StaffID(c)
	}
	handler.Respond(c, http.StatusOK, h.service.AcceptCase(c.Request.Context(), c.Param("id"), doctorID), h.view)
}

func (h *Handler) ReassignCase(c *gin.Context) {
	var req ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	res := h.service.ReassignCase(c.Request.Context(), c.Param("id"), req.DoctorID, req.Reason, middleware.StaffID(c))
	handler.Respond(c, http.StatusOK, res, h.view)
}

func (h *Handler) OverridePriority(c *gin.Context) {
	var req OverridePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	res := h.service.OverridePriority(c.Request.Context(), c.Param("id"), req.Priority, req.Reason, middleware.StaffID(c))
	handler.Respond(c, http.StatusOK, res, h.view)
}

func (h *Handler) ClearPriorityOverride(c *gin.Context) {
	res := h.service.ClearPriorityOverride(c.Request.Context(), c.Param("id"), c.Query("reason"), middleware.StaffID(c))
	handler.Respond(c, http.StatusOK, res, h.view)
}

func (h *Handler) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	res := h.service.AddComment(c.Request.Context(), c.Param("id"), middleware.StaffID(c), req.Content, model.CommentCategory(req.Category))
	handler.Respond(c, http.StatusCreated, res, func(cm model.Comment) interface{} { return cm })
}

func (h *Handler) GetAuditTrail(c *gin.Context) {
	res := h.service.GetAuditTrail(c.Request.Context(), c.Param("id"))
	handler.Respond(c, http.StatusOK, res, func(logs []*model.AuditLog) interface{} { return logs })
}

func (h *Handler) GetDoctorPatients(c *gin.Context) {
	handler.Respond(c, http.StatusOK, h.service.GetDoctorPatients(c.Request.Context(), c.Param("id")), h.views)
}

func (h *Handler) EvaluateVitals(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err)
		return
	}
	res := h.service.EvaluateVitals(c.Request.Context(), req.Vitals.toModel(middleware.StaffID(c)), req.ManualPriority)
	handler.Respond(c, http.StatusOK, res, func(a priority.Assessment) interface{} { return a })
}

func (h *Handler) view(p *model.Patient) interface{} {
	return newPatientResponse(p, h.now())
}

func (h *Handler) views(ps []*model.Patient) interface{} {
	now := h.now()
	out := make([]PatientResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, newPatientResponse(p, now))
	}
	return out
}
