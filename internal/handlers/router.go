package handlers

import (
	"reftrack/internal/middleware"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
)

func (h *Handler) SetupRouter(rateLimiter *services.IPRateLimiter) *gin.Engine {
	r := gin.Default()

	tracking := []gin.HandlerFunc{}
	if rateLimiter != nil {
		tracking = append(tracking, middleware.RateLimit(rateLimiter))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	// Public share links
	r.GET("/go/:affiliate", append(tracking, h.RedirectToAffiliate)...)
	r.GET("/go/:affiliate/qr", h.AffiliateQRCode)

	api := r.Group("/api/v1")
	{
		referrals := api.Group("/referrals")
		referrals.POST("", append(tracking, h.TrackReferral)...)
		referrals.POST("/batch", append(tracking, h.TrackReferralBatch)...)
		referrals.GET("/pending", h.PendingReferrals)
		referrals.GET("/code/:code", h.GetReferralByCode)
		referrals.GET("/:id", h.GetReferral)
		referrals.POST("/:id/convert", h.ConvertReferral)
		referrals.POST("/:id/cancel", h.CancelReferral)
		referrals.POST("/:id/expire", h.ExpireReferral)
		referrals.POST("/:id/reject", h.RejectReferral)

		api.DELETE("/affiliates/:identifier/cache", h.EvictAffiliateCache)

		commissions := api.Group("/commissions")
		commissions.POST("", h.CreateCommission)
		commissions.GET("/total", h.CommissionTotal)
		commissions.GET("/:id", h.GetCommission)
		commissions.POST("/:id/pay", h.PayCommission)
		commissions.PUT("/:id/status", h.UpdateCommissionStatus)

		analytics := api.Group("/analytics")
		analytics.GET("/affiliates/:id/statistics", h.AffiliateStatistics)
		analytics.GET("/affiliates/:id/conversion-rate", h.AffiliateConversionRate)
		analytics.GET("/affiliates/:id/top-referrals", h.AffiliateTopReferrals)
		analytics.GET("/affiliates/:id/earnings", h.AffiliateEarnings)
		analytics.GET("/affiliates/:id/revenue", h.AffiliateRevenue)
		analytics.GET("/earnings", h.EarningsSummary)
		analytics.GET("/earnings/trends", h.EarningsTrends)
		analytics.GET("/trends", h.ReferralTrends)
		analytics.GET("/sources", h.SourceAnalytics)
		analytics.GET("/clients/:id/top-affiliates", h.ClientTopAffiliates)
		analytics.GET("/clients/:id/dashboard", h.ClientDashboard)
	}

	return r
}
