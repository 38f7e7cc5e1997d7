package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reftrack/internal/config"
	"reftrack/internal/models"
	"reftrack/internal/repository"

	"github.com/shopspring/decimal"
)

const commissionTypeManual = "MANUAL"

type ManualCommissionRequest struct {
	AffiliateID uint             `json:"affiliate_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Percentage  *decimal.Decimal `json:"percentage"`
	Currency    string           `json:"currency"`
	Type        string           `json:"type"`
	Description string           `json:"description"`
}

type CommissionService struct {
	store       repository.Store
	publisher   EventPublisher
	metrics     *Metrics
	logger      *slog.Logger
	defaultRate decimal.Decimal
	currency    string
	now         func() time.Time
}

func NewCommissionService(store repository.Store, cfg config.Config, publisher EventPublisher, metrics *Metrics, logger *slog.Logger) *CommissionService {
	currency := strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &CommissionService{
		store:       store,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		defaultRate: decimal.NewFromFloat(cfg.DefaultCommissionRate).Round(2),
		currency:    currency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RateFor returns the affiliate's own commission rate, falling back to the
// configured default when the affiliate has none.
func (s *CommissionService) RateFor(a *models.Affiliate) decimal.Decimal {
	if a != nil && a.CommissionRate != nil {
		return *a.CommissionRate
	}
	return s.defaultRate
}

func validPercentage(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}

// Derive creates the automatic commission for a freshly converted referral.
// It must run on the store handle of the converting transaction.
func (s *CommissionService) Derive(ctx context.Context, store repository.Store, ref *models.Referral, rate decimal.Decimal) (*models.Commission, error) {
	if !validPercentage(rate) {
		return nil, validationError("commission rate %s outside 0-100", rate)
	}
	if !ref.IsConverted() || ref.ConversionValue == nil {
		return nil, fmt.Errorf("referral %d is not converted: %w", ref.ID, ErrInvalidTransition)
	}

	earnedAt := s.now()
	if ref.ConvertedAt != nil {
		earnedAt = *ref.ConvertedAt
	}
	referralID := ref.ID
	c := &models.Commission{
		AffiliateID: ref.AffiliateID,
		ClientID:    ref.ClientID,
		ReferralID:  &referralID,
		Amount:      ref.ConversionValue.Mul(rate).Shift(-2).Round(2),
		Percentage:  rate,
		Currency:    s.currency,
		Status:      models.CommissionPending,
		Type:        models.CommissionTypeReferral,
		DeviceType:  ref.DeviceType,
		EarnedAt:    earnedAt,
		CreatedAt:   earnedAt,
		UpdatedAt:   earnedAt,
	}
	if err := store.CreateCommission(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("commission for referral %d already exists: %w", ref.ID, ErrInvalidTransition)
		}
		return nil, err
	}
	return c, nil
}

// cancelForReferral cancels the automatic commission of a referral whose
// conversion is being reversed. Paid commissions are left alone.
func (s *CommissionService) cancelForReferral(ctx context.Context, store repository.Store, referralID uint) (*models.Commission, error) {
	c, err := store.FindCommissionByReferral(ctx, referralID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(models.CommissionCancelled) {
		s.logger.Warn("Commission not cancelled with its referral", "commission_id", c.ID, "referral_id", referralID, "status", c.Status)
		return nil, nil
	}
	prev := c.Status
	c.Status = models.CommissionCancelled
	c.UpdatedAt = s.now()
	if err := store.TransitionCommission(ctx, c, prev); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("commission %d changed concurrently: %w", c.ID, ErrInvalidTransition)
		}
		return nil, err
	}
	return c, nil
}

func (s *CommissionService) CreateManual(ctx context.Context, req ManualCommissionRequest) (*models.Commission, error) {
	if req.AffiliateID == 0 {
		return nil, validationError("affiliate_id is required")
	}
	if req.Amount.IsNegative() {
		return nil, validationError("amount must not be negative")
	}
	percentage := decimal.Zero
	if req.Percentage != nil {
		if !validPercentage(*req.Percentage) {
			return nil, validationError("percentage must be between 0 and 100")
		}
		percentage = *req.Percentage
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 {
		return nil, validationError("currency must be a 3-letter code")
	}
	kind := strings.ToUpper(strings.TrimSpace(req.Type))
	if kind == "" {
		kind = commissionTypeManual
	}
	if kind == models.CommissionTypeReferral {
		return nil, validationError("type %s is reserved for derived commissions", kind)
	}

	affiliate, err := s.store.FindAffiliateByID(ctx, req.AffiliateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("affiliate %d: %w", req.AffiliateID, ErrUnknownAffiliate)
		}
		return nil, err
	}

	now := s.now()
	c := &models.Commission{
		AffiliateID: affiliate.ID,
		ClientID:    affiliate.ClientID,
		Amount:      req.Amount.Round(2),
		Percentage:  percentage,
		Currency:    currency,
		Status:      models.CommissionPending,
		Type:        kind,
		Description: req.Description,
		EarnedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCommission(ctx, c); err != nil {
		return nil, err
	}

	s.announceCreated(ctx, c)
	return c, nil
}

func (s *CommissionService) announceCreated(ctx context.Context, c *models.Commission) {
	s.metrics.Commission(c.Type, string(c.Status))
	s.logger.Info("Commission created", "commission_id", c.ID, "affiliate_id", c.AffiliateID, "amount", c.Amount.StringFixed(2), "type", c.Type)

	evt := newEvent(EventCommissionCreated, c.AffiliateID, c.CreatedAt)
	evt.CommissionID = &c.ID
	evt.ReferralID = c.ReferralID
	evt.Status = string(c.Status)
	amount := c.Amount
	evt.Amount = &amount
	s.publisher.Publish(ctx, evt)
}

func (s *CommissionService) MarkPaid(ctx context.Context, id uint) (*models.Commission, error) {
	return s.UpdateStatus(ctx, id, models.CommissionPaid)
}

// UpdateStatus applies one legal commission transition. PaidAt is stamped when
// the commission becomes PAID.
func (s *CommissionService) UpdateStatus(ctx context.Context, id uint, status models.CommissionStatus) (*models.Commission, error) {
	if !status.Valid() {
		return nil, validationError("unknown commission status %q", status)
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CommissionPaid && status == models.CommissionPaid {
		return nil, fmt.Errorf("commission %d: %w", id, ErrAlreadyPaid)
	}
	if !c.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("commission %d %s -> %s: %w", id, c.Status, status, ErrInvalidTransition)
	}

	prev := c.Status
	now := s.now()
	c.Status = status
	c.UpdatedAt = now
	if status == models.CommissionPaid {
		c.PaidAt = &now
	}
	if err := s.store.TransitionCommission(ctx, c, prev); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("commission %d changed concurrently: %w", id, ErrInvalidTransition)
		}
		return nil, err
	}

	s.metrics.Commission(c.Type, string(status))
	s.logger.Info("Commission status updated", "commission_id", id, "from", prev, "to", status)
	evt := newEvent(EventCommissionUpdated, c.AffiliateID, now)
	evt.CommissionID = &c.ID
	evt.ReferralID = c.ReferralID
	evt.Status = string(status)
	s.publisher.Publish(ctx, evt)
	return c, nil
}

func (s *CommissionService) Get(ctx context.Context, id uint) (*models.Commission, error) {
	c, err := s.store.FindCommissionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("commission %d: %w", id, err)
	}
	return c, nil
}

func (s *CommissionService) ListByStatus(ctx context.Context, status models.CommissionStatus) ([]models.Commission, error) {
	if !status.Valid() {
		return nil, validationError("unknown commission status %q", status)
	}
	return s.store.FindCommissionsByStatus(ctx, status)
}

func (s *CommissionService) TotalByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Zero, validationError("start must not be after end")
	}
	return s.store.SumAmountByAffiliateAndRange(ctx, affiliateID, start, end)
}

func (s *CommissionService) TotalByStatus(ctx context.Context, status models.CommissionStatus) (decimal.Decimal, error) {
	if !status.Valid() {
		return decimal.Zero, validationError("unknown commission status %q", status)
	}
	return s.store.SumAmountByStatus(ctx, status)
}
