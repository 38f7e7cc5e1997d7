package handlers

import (
	"net/http"

	"reftrack/internal/models"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) CreateCommission(c *gin.Context) {
	var req services.ManualCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	commission, err := h.commissions.CreateManual(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commission)
}

func (h *Handler) GetCommission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	commission, err := h.commissions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commission)
}

func (h *Handler) PayCommission(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	commission, err := h.commissions.MarkPaid(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commission)
}

func (h *Handler) UpdateCommissionStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	status, err := models.ParseCommissionStatus(req.Status)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	commission, err := h.commissions.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commission)
}

// CommissionTotal sums either one affiliate's commissions over a range or all
// commissions in one status.
func (h *Handler) CommissionTotal(c *gin.Context) {
	var (
		total decimal.Decimal
		err   error
	)
	if raw := c.Query("status"); raw != "" {
		status, parseErr := models.ParseCommissionStatus(raw)
		if parseErr != nil {
			badRequest(c, parseErr.Error())
			return
		}
		total, err = h.commissions.TotalByStatus(c.Request.Context(), status)
	} else {
		affiliateID, ok := optionalUint(c, "affiliate_id")
		if !ok {
			return
		}
		if affiliateID == nil {
			badRequest(c, "affiliate_id or status is required")
			return
		}
		start, end, ok := timeRange(c)
		if !ok {
			return
		}
		if start.IsZero() || end.IsZero() {
			badRequest(c, "start and end are required with affiliate_id")
			return
		}
		total, err = h.commissions.TotalByAffiliateAndRange(c.Request.Context(), *affiliateID, start, end)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total.StringFixed(2)})
}
