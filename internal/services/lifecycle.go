package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"reftrack/internal/models"
	"reftrack/internal/repository"
	"reftrack/pkg/utils"

	"github.com/shopspring/decimal"
)

const (
	maxReferralCodeLength   = 100
	maxCodeAttempts         = 5
	defaultPendingAfterDays = 30
)

var ErrAffiliateInactive = fmt.Errorf("affiliate is not active: %w", ErrValidation)

type TrackClickRequest struct {
	AffiliateID  uint              `json:"affiliate_id"`
	ReferralCode string            `json:"referral_code"`
	TargetURL    string            `json:"target_url"`
	SourceURL    string            `json:"source_url"`
	Campaign     string            `json:"campaign"`
	UserAgent    string            `json:"user_agent"`
	IPAddress    string            `json:"ip_address"`
	Metadata     map[string]string `json:"metadata"`
}

type BatchResult struct {
	Index    int
	Referral *models.Referral
	Err      error
}

type RedirectRequest struct {
	AffiliateIdentifier string
	Campaign            string
	SourceURL           string
	UserAgent           string
	IPAddress           string
	Metadata            map[string]string
}

type LifecycleDeps struct {
	Store       repository.Store
	Classifier  DeviceClassifier
	Locator     LocationResolver
	Commissions *CommissionService
	Publisher   EventPublisher
	Metrics     *Metrics
	Cache       *AffiliateCache
	Logger      *slog.Logger
	// Codes generates redirect referral codes; nil means RandomCodeGenerator.
	Codes utils.CodeGenerator
}

// LifecycleService owns the referral state machine:
// CLICKED -> CONVERTED | REJECTED | EXPIRED, and CONVERTED -> CANCELLED.
type LifecycleService struct {
	store       repository.Store
	classifier  DeviceClassifier
	locator     LocationResolver
	commissions *CommissionService
	publisher   EventPublisher
	metrics     *Metrics
	cache       *AffiliateCache
	logger      *slog.Logger
	codes       utils.CodeGenerator
	now         func() time.Time
}

func NewLifecycleService(deps LifecycleDeps) *LifecycleService {
	codes := deps.Codes
	if codes == nil {
		codes = utils.RandomCodeGenerator{}
	}
	return &LifecycleService{
		store:       deps.Store,
		classifier:  deps.Classifier,
		locator:     deps.Locator,
		commissions: deps.Commissions,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		cache:       deps.Cache,
		logger:      deps.Logger,
		codes:       codes,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validateTrackRequest(req *TrackClickRequest) error {
	req.ReferralCode = strings.TrimSpace(req.ReferralCode)
	req.TargetURL = strings.TrimSpace(req.TargetURL)
	switch {
	case req.AffiliateID == 0:
		return validationError("affiliate_id is required")
	case req.ReferralCode == "":
		return validationError("referral_code is required")
	case len(req.ReferralCode) > maxReferralCodeLength:
		return validationError("referral_code longer than %d characters", maxReferralCodeLength)
	case req.TargetURL == "":
		return validationError("target_url is required")
	}
	return nil
}

// TrackClick records a new CLICKED referral after enriching it with device and
// location data.
func (s *LifecycleService) TrackClick(ctx context.Context, req TrackClickRequest) (*models.Referral, error) {
	if err := validateTrackRequest(&req); err != nil {
		s.metrics.TrackFailure("validation")
		return nil, err
	}

	affiliate, err := s.store.FindAffiliateByID(ctx, req.AffiliateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.TrackFailure("unknown_affiliate")
			return nil, fmt.Errorf("affiliate %d: %w", req.AffiliateID, ErrUnknownAffiliate)
		}
		return nil, err
	}
	return s.trackClick(ctx, affiliate, req)
}

func (s *LifecycleService) trackClick(ctx context.Context, affiliate *models.Affiliate, req TrackClickRequest) (*models.Referral, error) {
	// Fast path only; the unique index is what actually guards the code.
	taken, err := s.store.ExistsActiveCode(ctx, req.ReferralCode)
	if err != nil {
		return nil, err
	}
	if taken {
		s.metrics.TrackFailure("duplicate_code")
		return nil, fmt.Errorf("code %s: %w", req.ReferralCode, ErrDuplicateActiveCode)
	}

	device := s.classifier.ClassifyDevice(req.UserAgent)
	location := s.locator.ResolveLocation(req.IPAddress)
	now := s.now()

	ref := &models.Referral{
		AffiliateID:     affiliate.ID,
		ClientID:        affiliate.ClientID,
		ReferralCode:    req.ReferralCode,
		TargetURL:       req.TargetURL,
		SourceURL:       strings.TrimSpace(req.SourceURL),
		Campaign:        strings.TrimSpace(req.Campaign),
		Status:          models.ReferralClicked,
		UserAgent:       req.UserAgent,
		IPAddress:       req.IPAddress,
		DeviceType:      device.DeviceType,
		BrowserName:     device.BrowserName,
		OperatingSystem: device.OperatingSystem,
		Country:         location.Country,
		City:            location.City,
		Metadata:        req.Metadata,
		ClickedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateReferral(ctx, ref); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.TrackFailure("duplicate_code")
			return nil, fmt.Errorf("code %s: %w", req.ReferralCode, ErrDuplicateActiveCode)
		}
		return nil, err
	}

	s.metrics.ReferralEvent("clicked")
	s.logger.Info("Referral tracked", "referral_id", ref.ID, "affiliate_id", ref.AffiliateID, "code", ref.ReferralCode, "device", ref.DeviceType)
	s.publish(ctx, EventReferralClicked, ref)
	return ref, nil
}

// TrackBatch tracks every request independently. A failing item never undoes
// the items around it.
func (s *LifecycleService) TrackBatch(ctx context.Context, reqs []TrackClickRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	for i, req := range reqs {
		ref, err := s.TrackClick(ctx, req)
		results[i] = BatchResult{Index: i, Referral: ref, Err: err}
		if err != nil {
			s.logger.Warn("Batch item failed", "index", i, "affiliate_id", req.AffiliateID, "error", err)
		}
	}
	return results
}

// TrackRedirect resolves an affiliate link, tracks the click under a fresh
// code and returns the URL the visitor should be sent to.
func (s *LifecycleService) TrackRedirect(ctx context.Context, req RedirectRequest) (*models.Referral, string, error) {
	identifier := strings.TrimSpace(req.AffiliateIdentifier)
	if identifier == "" {
		return nil, "", validationError("affiliate identifier is required")
	}

	affiliate, err := s.affiliateByIdentifier(ctx, identifier)
	if err != nil {
		return nil, "", err
	}
	if !affiliate.IsActive() {
		return nil, "", fmt.Errorf("affiliate %s: %w", identifier, ErrAffiliateInactive)
	}
	target, err := url.Parse(strings.TrimSpace(affiliate.TargetURL))
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, "", validationError("affiliate %s has no usable target url", identifier)
	}

	var ref *models.Referral
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		ref, err = s.trackClick(ctx, affiliate, TrackClickRequest{
			AffiliateID:  affiliate.ID,
			ReferralCode: s.codes.Generate(),
			TargetURL:    affiliate.TargetURL,
			SourceURL:    req.SourceURL,
			Campaign:     req.Campaign,
			UserAgent:    req.UserAgent,
			IPAddress:    req.IPAddress,
			Metadata:     req.Metadata,
		})
		if !errors.Is(err, ErrDuplicateActiveCode) {
			break
		}
		s.logger.Warn("Generated referral code collided, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return nil, "", err
	}

	q := target.Query()
	q.Set("ref", ref.ReferralCode)
	q.Set("affiliate", affiliate.UniqueIdentifier)
	if campaign := strings.TrimSpace(req.Campaign); campaign != "" {
		q.Set("campaign", campaign)
	}
	target.RawQuery = q.Encode()
	return ref, target.String(), nil
}

// EvictAffiliate drops the cached redirect lookup for identifier. The
// account side calls it after changing an affiliate; otherwise a change is
// seen by redirects once the cache entry expires.
func (s *LifecycleService) EvictAffiliate(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return validationError("affiliate identifier is required")
	}
	s.cache.Invalidate(ctx, identifier)
	s.logger.Info("Affiliate cache entry evicted", "identifier", identifier)
	return nil
}

func (s *LifecycleService) affiliateByIdentifier(ctx context.Context, identifier string) (*models.Affiliate, error) {
	if a, ok := s.cache.Get(ctx, identifier); ok {
		return a, nil
	}
	a, err := s.store.FindAffiliateByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("affiliate %s: %w", identifier, ErrUnknownAffiliate)
		}
		return nil, err
	}
	s.cache.Set(ctx, a)
	return a, nil
}

// Convert moves a CLICKED referral to CONVERTED and derives its commission in
// the same transaction.
func (s *LifecycleService) Convert(ctx context.Context, id uint, value decimal.Decimal, orderID *string) (*models.Referral, error) {
	if value.IsNegative() {
		return nil, validationError("conversion value must not be negative")
	}

	var ref *models.Referral
	var commission *models.Commission
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		r, err := tx.FindReferralByID(ctx, id)
		if err != nil {
			return fmt.Errorf("referral %d: %w", id, err)
		}
		switch {
		case r.Status == models.ReferralConverted:
			return fmt.Errorf("referral %d: %w", id, ErrAlreadyConverted)
		case !r.Status.CanTransitionTo(models.ReferralConverted):
			return fmt.Errorf("referral %d is %s: %w", id, r.Status, ErrInvalidTransition)
		}

		now := s.now()
		v := value.Round(2)
		r.Status = models.ReferralConverted
		r.ConversionValue = &v
		r.ConvertedAt = &now
		r.OrderID = orderID
		r.UpdatedAt = now
		if err := tx.TransitionReferral(ctx, r, models.ReferralClicked); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("referral %d changed concurrently: %w", id, ErrInvalidTransition)
			}
			return err
		}

		affiliate, err := tx.FindAffiliateByID(ctx, r.AffiliateID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		commission, err = s.commissions.Derive(ctx, tx, r, s.commissions.RateFor(affiliate))
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	value64, _ := ref.ConversionValue.Float64()
	s.metrics.ReferralEvent("converted")
	s.metrics.ConversionValue(value64)
	s.logger.Info("Referral converted", "referral_id", ref.ID, "value", ref.ConversionValue.StringFixed(2), "commission_id", commission.ID)
	s.publish(ctx, EventReferralConverted, ref)
	s.commissions.announceCreated(ctx, commission)
	return ref, nil
}

// CancelConversion reverses a conversion. The value and conversion time are
// cleared so the referral stops counting as revenue.
func (s *LifecycleService) CancelConversion(ctx context.Context, id uint) (*models.Referral, error) {
	var ref *models.Referral
	var cancelled *models.Commission
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		r, err := tx.FindReferralByID(ctx, id)
		if err != nil {
			return fmt.Errorf("referral %d: %w", id, err)
		}
		if !r.Status.CanTransitionTo(models.ReferralCancelled) {
			return fmt.Errorf("referral %d is %s: %w", id, r.Status, ErrInvalidTransition)
		}

		r.Status = models.ReferralCancelled
		r.ConversionValue = nil
		r.ConvertedAt = nil
		r.UpdatedAt = s.now()
		if err := tx.TransitionReferral(ctx, r, models.ReferralConverted); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("referral %d changed concurrently: %w", id, ErrInvalidTransition)
			}
			return err
		}

		cancelled, err = s.commissions.cancelForReferral(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ReferralEvent("cancelled")
	s.logger.Info("Referral conversion cancelled", "referral_id", ref.ID)
	s.publish(ctx, EventReferralCancelled, ref)
	if cancelled != nil {
		s.metrics.Commission(cancelled.Type, string(cancelled.Status))
		evt := newEvent(EventCommissionUpdated, cancelled.AffiliateID, cancelled.UpdatedAt)
		evt.CommissionID = &cancelled.ID
		evt.ReferralID = cancelled.ReferralID
		evt.Status = string(cancelled.Status)
		s.publisher.Publish(ctx, evt)
	}
	return ref, nil
}

func (s *LifecycleService) Expire(ctx context.Context, id uint) (*models.Referral, error) {
	return s.close(ctx, id, models.ReferralExpired, EventReferralExpired)
}

func (s *LifecycleService) Reject(ctx context.Context, id uint) (*models.Referral, error) {
	return s.close(ctx, id, models.ReferralRejected, EventReferralRejected)
}

// close ends a CLICKED referral. Repeating the same terminal status is a no-op.
func (s *LifecycleService) close(ctx context.Context, id uint, target models.ReferralStatus, event EventType) (*models.Referral, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == target {
		return r, nil
	}
	if !r.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("referral %d is %s: %w", id, r.Status, ErrInvalidTransition)
	}

	r.Status = target
	r.UpdatedAt = s.now()
	if err := s.store.TransitionReferral(ctx, r, models.ReferralClicked); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == target {
			return current, nil
		}
		return nil, fmt.Errorf("referral %d is %s: %w", id, current.Status, ErrInvalidTransition)
	}

	s.metrics.ReferralEvent(strings.ToLower(string(target)))
	s.logger.Info("Referral closed", "referral_id", id, "status", target)
	s.publish(ctx, event, r)
	return r, nil
}

func (s *LifecycleService) Get(ctx context.Context, id uint) (*models.Referral, error) {
	r, err := s.store.FindReferralByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("referral %d: %w", id, err)
	}
	return r, nil
}

func (s *LifecycleService) GetByCode(ctx context.Context, code string) (*models.Referral, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("referral code is required")
	}
	r, err := s.store.FindReferralByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("referral code %s: %w", code, err)
	}
	return r, nil
}

// PendingConversions lists CLICKED referrals older than olderThanDays days,
// optionally for one affiliate. Non-positive days fall back to 30.
func (s *LifecycleService) PendingConversions(ctx context.Context, affiliateID *uint, olderThanDays int) ([]models.Referral, error) {
	if olderThanDays <= 0 {
		olderThanDays = defaultPendingAfterDays
	}
	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	return s.store.FindStaleClicks(ctx, affiliateID, cutoff, 0)
}

// ExpireStale expires up to batch CLICKED referrals clicked before cutoff and
// reports how many it expired. Referrals that moved on concurrently are skipped.
func (s *LifecycleService) ExpireStale(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	stale, err := s.store.FindStaleClicks(ctx, nil, cutoff, batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range stale {
		r := &stale[i]
		r.Status = models.ReferralExpired
		r.UpdatedAt = s.now()
		if err := s.store.TransitionReferral(ctx, r, models.ReferralClicked); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			return expired, err
		}
		expired++
		s.metrics.ReferralEvent("expired")
		s.publish(ctx, EventReferralExpired, r)
	}
	return expired, nil
}

func (s *LifecycleService) publish(ctx context.Context, t EventType, r *models.Referral) {
	evt := newEvent(t, r.AffiliateID, r.UpdatedAt)
	id := r.ID
	evt.ReferralID = &id
	evt.Status = string(r.Status)
	if r.ConversionValue != nil {
		v := *r.ConversionValue
		evt.Amount = &v
	}
	s.publisher.Publish(ctx, evt)
}
