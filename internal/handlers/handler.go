package handlers

import (
	"log/slog"

	"reftrack/internal/config"
	"reftrack/internal/services"
)

type Handler struct {
	cfg         config.Config
	logger      *slog.Logger
	lifecycle   *services.LifecycleService
	commissions *services.CommissionService
	analytics   *services.AnalyticsService
	qrService   *services.QRService
	metrics     *services.Metrics
}

func NewHandler(
	cfg config.Config,
	logger *slog.Logger,
	lifecycle *services.LifecycleService,
	commissions *services.CommissionService,
	analytics *services.AnalyticsService,
	qrService *services.QRService,
	metrics *services.Metrics,
) *Handler {
	return &Handler{
		cfg:         cfg,
		logger:      logger,
		lifecycle:   lifecycle,
		commissions: commissions,
		analytics:   analytics,
		qrService:   qrService,
		metrics:     metrics,
	}
}
