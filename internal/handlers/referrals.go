package handlers

import (
	"context"
	"net/http"

	"reftrack/internal/middleware"
	"reftrack/internal/models"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BatchTrackRequest struct {
	Referrals []services.TrackClickRequest `json:"referrals" binding:"required"`
}

type BatchItemResponse struct {
	Index    int              `json:"index"`
	Referral *models.Referral `json:"referral,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type ConvertRequest struct {
	ConversionValue *decimal.Decimal `json:"conversion_value"`
	OrderID         *string          `json:"order_id"`
}

// fillClientInfo defaults user agent and IP to the calling client's.
func fillClientInfo(c *gin.Context, req *services.TrackClickRequest) {
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = middleware.ClientIP(c)
	}
	if req.SourceURL == "" {
		req.SourceURL = c.Request.Referer()
	}
}

func (h *Handler) TrackReferral(c *gin.Context) {
	var req services.TrackClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	fillClientInfo(c, &req)

	ref, err := h.lifecycle.TrackClick(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *Handler) TrackReferralBatch(c *gin.Context) {
	var req BatchTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	for i := range req.Referrals {
		fillClientInfo(c, &req.Referrals[i])
	}

	results := h.lifecycle.TrackBatch(c.Request.Context(), req.Referrals)
	out := make([]BatchItemResponse, len(results))
	failed := 0
	for i, r := range results {
		out[i] = BatchItemResponse{Index: r.Index}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			failed++
			continue
		}
		out[i].Referral = r.Referral
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   out,
		"succeeded": len(results) - failed,
		"failed":    failed,
	})
}

func (h *Handler) GetReferral(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) GetReferralByCode(c *gin.Context) {
	ref, err := h.lifecycle.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) PendingReferrals(c *gin.Context) {
	affiliateID, ok := optionalUint(c, "affiliate_id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	refs, err := h.lifecycle.PendingConversions(c.Request.Context(), affiliateID, days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrals": refs, "count": len(refs)})
}

func (h *Handler) ConvertReferral(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ConversionValue == nil {
		badRequest(c, "conversion_value is required")
		return
	}

	ref, err := h.lifecycle.Convert(c.Request.Context(), id, *req.ConversionValue, req.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

func (h *Handler) CancelReferral(c *gin.Context) {
	h.transition(c, h.lifecycle.CancelConversion)
}

func (h *Handler) ExpireReferral(c *gin.Context) {
	h.transition(c, h.lifecycle.Expire)
}

func (h *Handler) RejectReferral(c *gin.Context) {
	h.transition(c, h.lifecycle.Reject)
}

func (h *Handler) transition(c *gin.Context, apply func(ctx context.Context, id uint) (*models.Referral, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, err := apply(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}
