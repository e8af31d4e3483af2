package lifecycle

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/pagination"
	"github.com/wardenhq/warden/internal/requests"
	"github.com/wardenhq/warden/internal/validation"
)

// Handler provides HTTP endpoints for admin lifecycle operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new lifecycle handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up lifecycle routes. All of them require a
// resolved actor; RequireActor runs on the group upstream.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admins", h.CreateAdmin)
	r.GET("/admins", h.ListAdmins)
	r.GET("/admins/:id", h.GetAdmin)
	r.POST("/admins/:id/activate", h.ActivateAdmin)
	r.POST("/admins/:id/deactivate", h.DeactivateAdmin)
	r.PUT("/admins/:id/role", h.ChangeRole)
	r.PUT("/admins/:id/supervisor", h.ChangeSupervisor)
	r.POST("/admins/import", h.ImportAdmins)

	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListRequests)
	r.POST("/requests/:id/approve", h.ApproveRequest)
	r.POST("/requests/:id/reject", h.RejectRequest)
}

// kindStatus maps a failure kind to an HTTP status.
func kindStatus(k Kind) int {
	switch k {
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindStateConflict, KindCapacity:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondErr writes the error envelope for a failed operation.
func respondErr(c *gin.Context, err error) {
	kind := Classify(err)
	msg := err.Error()
	if kind == KindTransient {
		// Do not leak infrastructure details to callers.
		msg = "internal error"
	}
	c.JSON(kindStatus(kind), gin.H{
		"error":   string(kind),
		"message": msg,
	})
}

func mustActor(c *gin.Context) (Actor, bool) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "admin identity required",
		})
	}
	return actor, ok
}

// CreateAdminRequest is the body for POST /v1/admins.
type CreateAdminRequest struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Name         string `json:"name"`
	Role         string `json:"roleType"`
	SupervisorID string `json:"supervisorId"`
	Reason       string `json:"reason"`
}

// CreateAdmin handles POST /v1/admins
func (h *Handler) CreateAdmin(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("roleType", req.Role),
		validation.ValidEmail("email", req.Email),
		validation.ValidPhone("phone", req.Phone),
		validation.ValidAdminID("supervisorId", req.SupervisorID),
		validation.MaxLength("reason", req.Reason, validation.MaxReasonLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	admin, err := h.service.CreateAdmin(c.Request.Context(), actor, CreateAdminParams{
		Email:        req.Email,
		Phone:        req.Phone,
		Name:         validation.SanitizeString(req.Name, 200),
		Role:         hierarchy.Role(req.Role),
		SupervisorID: req.SupervisorID,
		Reason:       validation.SanitizeString(req.Reason, validation.MaxReasonLength),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"admin": admin})
}

// GetAdmin handles GET /v1/admins/:id
func (h *Handler) GetAdmin(c *gin.Context) {
	if _, ok := mustActor(c); !ok {
		return
	}
	admin, err := h.service.GetAdmin(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": admin})
}

// ListAdmins handles GET /v1/admins
func (h *Handler) ListAdmins(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	f := directory.Filter{
		Role:         hierarchy.Role(c.Query("role")),
		SupervisorID: c.Query("supervisorId"),
		Limit:        pagination.ClampLimit(queryInt(c, "limit")),
	}
	if v := c.Query("active"); v != "" {
		active := v == "true"
		f.Active = &active
	}
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Invalid pagination cursor",
		})
		return
	}
	if cur != nil {
		f.Cursor = &directory.Cursor{CreatedAt: cur.CreatedAt, AdminID: cur.ID}
	}

	admins, err := h.service.ListAdmins(c.Request.Context(), actor, f)
	if err != nil {
		respondErr(c, err)
		return
	}

	page, next, more := pagination.ComputePage(admins, f.Limit, func(a *directory.Admin) (time.Time, string) {
		return a.CreatedAt, a.AdminID
	})
	c.JSON(http.StatusOK, gin.H{
		"admins":      page,
		"next_cursor": next,
		"has_more":    more,
	})
}

// StatusChangeRequest is the body for direct activate/deactivate.
type StatusChangeRequest struct {
	Reason string `json:"reason"`
}

// ActivateAdmin handles POST /v1/admins/:id/activate
func (h *Handler) ActivateAdmin(c *gin.Context) {
	h.directChange(c, true)
}

// DeactivateAdmin handles POST /v1/admins/:id/deactivate
func (h *Handler) DeactivateAdmin(c *gin.Context) {
	h.directChange(c, false)
}

func (h *Handler) directChange(c *gin.Context, activate bool) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req StatusChangeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
			return
		}
	}
	reason := validation.SanitizeString(req.Reason, validation.MaxReasonLength)

	var err error
	if activate {
		err = h.service.DirectActivate(c.Request.Context(), actor, c.Param("id"), reason)
	} else {
		err = h.service.DirectDeactivate(c.Request.Context(), actor, c.Param("id"), reason)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChangeRoleRequest is the body for PUT /v1/admins/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"roleType" binding:"required"`
}

// ChangeRole handles PUT /v1/admins/:id/role
func (h *Handler) ChangeRole(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.service.ChangeRole(c.Request.Context(), actor, c.Param("id"), hierarchy.Role(req.Role)); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ChangeSupervisorRequest is the body for PUT /v1/admins/:id/supervisor.
type ChangeSupervisorRequest struct {
	SupervisorID string `json:"supervisorId" binding:"required"`
}

// ChangeSupervisor handles PUT /v1/admins/:id/supervisor
func (h *Handler) ChangeSupervisor(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req ChangeSupervisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.service.ChangeSupervisor(c.Request.Context(), actor, c.Param("id"), req.SupervisorID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ImportRequest is the body for POST /v1/admins/import.
type ImportRequest struct {
	Rows []ImportRow `json:"rows" binding:"required"`
}

// ImportAdmins handles POST /v1/admins/import
func (h *Handler) ImportAdmins(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	result, err := h.service.ImportRows(c.Request.Context(), actor, req.Rows)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// CreateStatusRequest is the body for POST /v1/requests.
type CreateStatusRequest struct {
	Type          string `json:"requestType" binding:"required"`
	TargetAdminID string `json:"targetAdminId" binding:"required"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes"`
}

// CreateRequest handles POST /v1/requests
func (h *Handler) CreateRequest(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req CreateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	params := RequestParams{
		TargetAdminID: req.TargetAdminID,
		Reason:        validation.SanitizeString(req.Reason, validation.MaxReasonLength),
		Notes:         validation.SanitizeString(req.Notes, validation.MaxReasonLength),
	}
	var (
		r   *requests.StatusRequest
		err error
	)
	switch requests.Type(req.Type) {
	case requests.TypeDeactivation:
		r, err = h.service.RequestDeactivation(c.Request.Context(), actor, params)
	case requests.TypeActivation:
		r, err = h.service.RequestActivation(c.Request.Context(), actor, params)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "requestType must be activation or deactivation",
		})
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": r})
}

// ListRequests handles GET /v1/requests
func (h *Handler) ListRequests(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	f := requests.Filter{
		TargetAdminID: c.Query("targetAdminId"),
		Type:          requests.Type(c.Query("type")),
		Status:        requests.Status(c.Query("status")),
		Limit:         pagination.ClampLimit(queryInt(c, "limit")),
	}
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Invalid pagination cursor",
		})
		return
	}
	if cur != nil {
		f.Cursor = &requests.Cursor{CreatedAt: cur.CreatedAt, RequestID: cur.ID}
	}

	out, err := h.service.ListRequests(c.Request.Context(), actor, f)
	if err != nil {
		respondErr(c, err)
		return
	}

	page, next, more := pagination.ComputePage(out, f.Limit, func(r *requests.StatusRequest) (time.Time, string) {
		return r.CreatedAt, r.RequestID
	})
	c.JSON(http.StatusOK, gin.H{
		"requests":    page,
		"next_cursor": next,
		"has_more":    more,
	})
}

// ReviewRequest is the body for approve/reject.
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// ApproveRequest handles POST /v1/requests/:id/approve
func (h *Handler) ApproveRequest(c *gin.Context) {
	h.review(c, true)
}

// RejectRequest handles POST /v1/requests/:id/reject
func (h *Handler) RejectRequest(c *gin.Context) {
	h.review(c, false)
}

func (h *Handler) review(c *gin.Context, approve bool) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
			return
		}
	}
	notes := validation.SanitizeString(req.Notes, validation.MaxReasonLength)

	var err error
	if approve {
		err = h.service.ApproveRequest(c.Request.Context(), actor, c.Param("id"), notes)
	} else {
		err = h.service.RejectRequest(c.Request.Context(), actor, c.Param("id"), notes)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func queryInt(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}
