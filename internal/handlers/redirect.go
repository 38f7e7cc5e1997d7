package handlers

import (
	"errors"
	"net/http"

	"reftrack/internal/middleware"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
)

// RedirectToAffiliate tracks a click on an affiliate's share link and sends
// the visitor on to the affiliate's target URL.
func (h *Handler) RedirectToAffiliate(c *gin.Context) {
	ref, target, err := h.lifecycle.TrackRedirect(c.Request.Context(), services.RedirectRequest{
		AffiliateIdentifier: c.Param("affiliate"),
		Campaign:            c.Query("campaign"),
		SourceURL:           c.Request.Referer(),
		UserAgent:           c.Request.UserAgent(),
		IPAddress:           middleware.ClientIP(c),
	})
	if err != nil {
		if errors.Is(err, services.ErrAffiliateInactive) {
			c.JSON(http.StatusGone, gin.H{"error": "Link disabled"})
			return
		}
		h.respondError(c, err)
		return
	}

	h.logger.Debug("Redirecting referral", "code", ref.ReferralCode, "target", target)
	c.Redirect(http.StatusFound, target)
}

// EvictAffiliateCache forces the next redirect for an affiliate to read the
// store, so status changes apply immediately.
func (h *Handler) EvictAffiliateCache(c *gin.Context) {
	if err := h.lifecycle.EvictAffiliate(c.Request.Context(), c.Param("identifier")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AffiliateQRCode(c *gin.Context) {
	size, ok := queryInt(c, "size")
	if !ok {
		return
	}
	identifier := c.Param("affiliate")
	campaign := c.Query("campaign")

	if c.Query("format") == "svg" {
		svg, err := h.qrService.AffiliateSVG(identifier, campaign)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
		return
	}

	png, err := h.qrService.AffiliatePNG(identifier, campaign, size)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
