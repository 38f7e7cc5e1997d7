package handlers

import (
	"net/http"

	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 20

func (h *Handler) AffiliateStatistics(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	report, err := h.analytics.ReferralStatistics(c.Request.Context(), id, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) AffiliateConversionRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	report, err := h.analytics.ConversionAnalytics(c.Request.Context(), id, c.Query("period"), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) AffiliateTopReferrals(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	links, err := h.analytics.TopPerformingReferrals(c.Request.Context(), id, limit, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_id": id, "top_links": links})
}

func (h *Handler) AffiliateEarnings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	report, err := h.analytics.AffiliateEarnings(c.Request.Context(), id, c.Query("period"), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) AffiliateRevenue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	total, err := h.analytics.TotalRevenue(c.Request.Context(), id, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_id": id, "total_revenue": total.StringFixed(2)})
}

func (h *Handler) EarningsSummary(c *gin.Context) {
	clientID, ok := optionalUint(c, "client_id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	report, err := h.analytics.EarningsSummary(c.Request.Context(), clientID, c.Query("period"), start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// EarningsTrends pages through earnings points. page is zero-based.
func (h *Handler) EarningsTrends(c *gin.Context) {
	var filter services.EarningsFilter
	var ok bool
	if filter.AffiliateID, ok = optionalUint(c, "affiliate_id"); !ok {
		return
	}
	if filter.ClientID, ok = optionalUint(c, "client_id"); !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	size, ok := queryInt(c, "size")
	if !ok {
		return
	}
	if page < 0 {
		badRequest(c, "page must not be negative")
		return
	}
	if size <= 0 {
		size = defaultPageSize
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}

	points, total, err := h.analytics.EarningsPage(c.Request.Context(), filter, c.Query("period"), start, end, page*size, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content":        points,
		"page":           page,
		"size":           size,
		"total_elements": total,
		"total_pages":    (total + size - 1) / size,
	})
}

func (h *Handler) ReferralTrends(c *gin.Context) {
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	affiliateID, ok := optionalUint(c, "affiliate_id")
	if !ok {
		return
	}
	report, err := h.analytics.ReferralTrends(c.Request.Context(), days, affiliateID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) SourceAnalytics(c *gin.Context) {
	affiliateID, ok := optionalUint(c, "affiliate_id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	sources, err := h.analytics.SourceAnalytics(c.Request.Context(), affiliateID, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

func (h *Handler) ClientTopAffiliates(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	ranking, err := h.analytics.TopAffiliates(c.Request.Context(), id, limit, start, end)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_id": id, "affiliates": ranking})
}

func (h *Handler) ClientDashboard(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	dashboard, err := h.analytics.ClientDashboard(c.Request.Context(), id, days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
