package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reftrack/internal/config"
	"reftrack/internal/models"
	"reftrack/internal/repository"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		DefaultCommissionRate: 10,
		DefaultCurrency:       "USD",
		PublicBaseURL:         "https://ref.example.com",
	}

	store := repository.NewGormStore(db)
	publisher := services.NewLogPublisher(logger)
	metrics := services.NewMetrics()
	commissions := services.NewCommissionService(store, cfg, publisher, metrics, logger)
	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		Store:       store,
		Classifier:  services.NewUserAgentClassifier(),
		Locator:     services.NewGeoIPService(cfg, logger),
		Commissions: commissions,
		Publisher:   publisher,
		Metrics:     metrics,
		Logger:      logger,
	})
	analytics := services.NewAnalyticsService(store, logger)
	qr := services.NewQRService(cfg.PublicBaseURL)

	return NewHandler(cfg, logger, lifecycle, commissions, analytics, qr, metrics), db
}

func setupTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return h.SetupRouter(nil)
}

func seedAffiliate(t *testing.T, db *gorm.DB, id uint, identifier, status string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Affiliate{
		ID:               id,
		ClientID:         7,
		UniqueIdentifier: identifier,
		Name:             identifier,
		Status:           status,
		TargetURL:        "https://shop.example.com/welcome",
		CreatedAt:        time.Now().UTC().AddDate(0, 0, -1),
	}).Error)
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
