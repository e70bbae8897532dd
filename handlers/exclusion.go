package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

type ExclusionHandler struct {
	exclusionService *services.ExclusionService
}

func NewExclusionHandler(exclusionService *services.ExclusionService) *ExclusionHandler {
	return &ExclusionHandler{exclusionService: exclusionService}
}

// DetectExclusions runs the engine over a parish and date range
func (h *ExclusionHandler) DetectExclusions(c *gin.Context) {
	req, ok := bindDetectRequest(c)
	if !ok {
		return
	}

	resp, err := h.exclusionService.Detect(c.Request.Context(), req)
	if err != nil {
		respondLedgerError(c, err, "Failed to detect exclusions")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReconcileExclusions releases AUTO exclusions that no longer hold
func (h *ExclusionHandler) ReconcileExclusions(c *gin.Context) {
	req, ok := bindDetectRequest(c)
	if !ok {
		return
	}

	resp, err := h.exclusionService.Reconcile(c.Request.Context(), req)
	if err != nil {
		respondLedgerError(c, err, "Failed to reconcile exclusions")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EvaluateCall evaluates one call; ?apply=true persists the decision
func (h *ExclusionHandler) EvaluateCall(c *gin.Context) {
	callID, ok := pathID(c, "id", "Call ID")
	if !ok {
		return
	}

	apply := false
	if raw := c.Query("apply"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "apply must be true or false", "field": "apply"})
			return
		}
		apply = v
	}

	result, err := h.exclusionService.EvaluateCall(c.Request.Context(), callID, apply)
	if err != nil {
		respondLedgerError(c, err, "Failed to evaluate call")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ManualExclusion excludes or un-excludes a call as the authenticated user
func (h *ExclusionHandler) ManualExclusion(c *gin.Context) {
	callID, ok := pathID(c, "id", "Call ID")
	if !ok {
		return
	}

	actor := c.GetString("user_email")
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req db.ManualExclusionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	call, err := h.exclusionService.ManualExclusion(c.Request.Context(), callID, actor, req)
	if err != nil {
		respondLedgerError(c, err, "Failed to update exclusion")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":            call.ID,
		"response_number":    call.ResponseNumber,
		"exclusion_type":     call.ExclusionType,
		"exclusion_reason":   call.ExclusionReason,
		"excluded_at":        call.ExcludedAt,
		"excluded_by":        call.ExcludedBy,
		"exclusion_metadata": call.ExclusionMetadata,
	})
}

// GetExclusionHistory returns the audit trail of a call
func (h *ExclusionHandler) GetExclusionHistory(c *gin.Context) {
	callID, ok := pathID(c, "id", "Call ID")
	if !ok {
		return
	}

	entries, err := h.exclusionService.History(c.Request.Context(), callID)
	if err != nil {
		respondLedgerError(c, err, "Failed to fetch exclusion history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id": callID,
		"entries": entries,
		"total":   len(entries),
	})
}

// InvalidateThresholdCache drops the cached zone thresholds of a parish
func (h *ExclusionHandler) InvalidateThresholdCache(c *gin.Context) {
	parishID, ok := pathID(c, "parish_id", "Parish ID")
	if !ok {
		return
	}

	h.exclusionService.InvalidateThresholds(c.Request.Context(), parishID)
	c.JSON(http.StatusOK, gin.H{"message": "Threshold cache invalidated", "parish_id": parishID})
}

func bindDetectRequest(c *gin.Context) (db.DetectRequest, bool) {
	var req db.DetectRequest
	parishID, ok := pathID(c, "parish_id", "Parish ID")
	if !ok {
		return req, false
	}

	// Body is optional: an empty request is a dry run over the default range
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return req, false
		}
	}
	req.ParishID = parishID
	return req, true
}

func pathID(c *gin.Context, param, label string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": label + " must be a positive integer", "field": param})
		return 0, false
	}
	return id, true
}

// respondLedgerError maps engine errors onto HTTP status codes
func respondLedgerError(c *gin.Context, err error, message string) {
	var validation *ledger.ValidationError
	var invariant *ledger.InvariantViolation

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Call not found"})
	case errors.As(err, &invariant):
		c.JSON(http.StatusConflict, gin.H{"error": invariant.Message, "code": invariant.Code})
	default:
		log.Printf("%s: %v", message, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message, "details": err.Error()})
	}
}
