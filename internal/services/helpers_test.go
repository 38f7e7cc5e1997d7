package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"reftrack/internal/config"
	"reftrack/internal/models"
	"reftrack/internal/repository"
	"reftrack/pkg/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixedLocator struct{}

func (fixedLocator) ResolveLocation(ip string) Location {
	if ip == "" {
		return Location{Country: "Unknown", City: "Unknown"}
	}
	return Location{Country: "Germany", City: "Berlin"}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

type testEnv struct {
	db          *gorm.DB
	store       *repository.GormStore
	publisher   *recordingPublisher
	commissions *CommissionService
	lifecycle   *LifecycleService
	analytics   *AnalyticsService
	now         time.Time
	// nextCode backs the generator handed to the lifecycle service.
	nextCode func() string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:        db,
		store:     repository.NewGormStore(db),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC),
		nextCode:  func() string { return "REF_" + uuid.NewString()[:12] },
	}
	clock := func() time.Time { return env.now }

	cfg := config.Config{DefaultCommissionRate: 10, DefaultCurrency: "usd"}
	env.commissions = NewCommissionService(env.store, cfg, env.publisher, nil, logger)
	env.commissions.now = clock

	env.lifecycle = NewLifecycleService(LifecycleDeps{
		Store:       env.store,
		Classifier:  NewUserAgentClassifier(),
		Locator:     fixedLocator{},
		Commissions: env.commissions,
		Publisher:   env.publisher,
		Logger:      logger,
		Codes:       utils.CodeGeneratorFunc(func() string { return env.nextCode() }),
	})
	env.lifecycle.now = clock

	env.analytics = NewAnalyticsService(env.store, logger)
	env.analytics.now = clock
	return env
}

func (e *testEnv) affiliate(t *testing.T, id uint, identifier string, rate *decimal.Decimal) *models.Affiliate {
	t.Helper()
	a := &models.Affiliate{
		ID:               id,
		ClientID:         100,
		UniqueIdentifier: identifier,
		Name:             identifier,
		Status:           models.AffiliateActive,
		TargetURL:        "https://shop.example.com/landing?src=aff",
		CommissionRate:   rate,
		CreatedAt:        e.now.AddDate(0, -2, 0),
	}
	require.NoError(t, e.db.Create(a).Error)
	return a
}

// seedReferral writes a referral with explicit timestamps straight to the DB.
func (e *testEnv) seedReferral(t *testing.T, affiliateID uint, code string, clickedAt time.Time, value string) *models.Referral {
	t.Helper()
	r := &models.Referral{
		AffiliateID:  affiliateID,
		ClientID:     100,
		ReferralCode: code,
		TargetURL:    "https://shop.example.com",
		Status:       models.ReferralClicked,
		ClickedAt:    clickedAt,
		CreatedAt:    clickedAt,
		UpdatedAt:    clickedAt,
	}
	if value != "" {
		v := decimal.RequireFromString(value)
		at := clickedAt.Add(time.Minute)
		r.Status = models.ReferralConverted
		r.ConversionValue = &v
		r.ConvertedAt = &at
	}
	require.NoError(t, e.db.Create(r).Error)
	return r
}

func ratePtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func click(affiliateID uint, code string) TrackClickRequest {
	return TrackClickRequest{
		AffiliateID:  affiliateID,
		ReferralCode: code,
		TargetURL:    "https://shop.example.com/product",
		SourceURL:    "https://www.google.com/search?q=shoes",
		UserAgent:    "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
		IPAddress:    "203.0.113.7",
	}
}
