package repository

import (
	"context"
	"time"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store is the durable home of referrals and commissions. Every method honours
// ctx; failures other than the typed kinds surface as ErrStoreUnavailable.
type Store interface {
	CreateReferral(ctx context.Context, r *models.Referral) error
	FindReferralByID(ctx context.Context, id uint) (*models.Referral, error)
	FindReferralByCode(ctx context.Context, code string) (*models.Referral, error)
	FindReferralsByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) ([]models.Referral, error)
	FindReferralsByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) ([]models.Referral, error)
	FindReferralsByRange(ctx context.Context, start, end time.Time) ([]models.Referral, error)
	FindStaleClicks(ctx context.Context, affiliateID *uint, cutoff time.Time, limit int) ([]models.Referral, error)
	ExistsActiveCode(ctx context.Context, code string) (bool, error)
	TransitionReferral(ctx context.Context, r *models.Referral, expected models.ReferralStatus) error

	CreateCommission(ctx context.Context, c *models.Commission) error
	FindCommissionByID(ctx context.Context, id uint) (*models.Commission, error)
	FindCommissionByReferral(ctx context.Context, referralID uint) (*models.Commission, error)
	FindCommissionsByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) ([]models.Commission, error)
	FindCommissionsByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) ([]models.Commission, error)
	FindCommissionsByRange(ctx context.Context, start, end time.Time) ([]models.Commission, error)
	FindCommissionsByStatus(ctx context.Context, status models.CommissionStatus) ([]models.Commission, error)
	TransitionCommission(ctx context.Context, c *models.Commission, expected models.CommissionStatus) error
	SumAmountByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) (decimal.Decimal, error)
	SumAmountByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) (decimal.Decimal, error)
	SumAmountByStatus(ctx context.Context, status models.CommissionStatus) (decimal.Decimal, error)

	FindAffiliateByID(ctx context.Context, id uint) (*models.Affiliate, error)
	FindAffiliateByIdentifier(ctx context.Context, identifier string) (*models.Affiliate, error)
	FindAffiliatesByClient(ctx context.Context, clientID uint) ([]models.Affiliate, error)
	CountAffiliates(ctx context.Context, filter AffiliateCountFilter) (int64, error)

	WithinTx(ctx context.Context, fn func(Store) error) error
}

type AffiliateCountFilter struct {
	ClientID    uint
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormStore{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return translate(err)
}

func (s *GormStore) CreateReferral(ctx context.Context, r *models.Referral) error {
	r.ClickedAt = r.ClickedAt.UTC()
	r.ConvertedAt = utcPtr(r.ConvertedAt)
	r.CreatedAt = utcOrNow(r.CreatedAt)
	r.UpdatedAt = utcOrNow(r.UpdatedAt)
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *GormStore) FindReferralByID(ctx context.Context, id uint) (*models.Referral, error) {
	var r models.Referral
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// FindReferralByCode returns the most recent referral carrying code.
func (s *GormStore) FindReferralByCode(ctx context.Context, code string) (*models.Referral, error) {
	var r models.Referral
	err := s.db.WithContext(ctx).Where("referral_code = ?", code).Order("id desc").First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) FindReferralsByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) ([]models.Referral, error) {
	return s.findReferrals(ctx, s.db.Where("affiliate_id = ?", affiliateID), start, end)
}

func (s *GormStore) FindReferralsByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) ([]models.Referral, error) {
	return s.findReferrals(ctx, s.db.Where("client_id = ?", clientID), start, end)
}

func (s *GormStore) FindReferralsByRange(ctx context.Context, start, end time.Time) ([]models.Referral, error) {
	return s.findReferrals(ctx, s.db, start, end)
}

func (s *GormStore) findReferrals(ctx context.Context, q *gorm.DB, start, end time.Time) ([]models.Referral, error) {
	var out []models.Referral
	err := q.WithContext(ctx).
		Where("clicked_at >= ? AND clicked_at <= ?", start.UTC(), end.UTC()).
		Order("clicked_at asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// FindStaleClicks lists CLICKED referrals clicked before cutoff, oldest first.
func (s *GormStore) FindStaleClicks(ctx context.Context, affiliateID *uint, cutoff time.Time, limit int) ([]models.Referral, error) {
	q := s.db.WithContext(ctx).Where("status = ? AND clicked_at < ?", models.ReferralClicked, cutoff.UTC())
	if affiliateID != nil {
		q = q.Where("affiliate_id = ?", *affiliateID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Referral
	if err := q.Order("clicked_at asc, id asc").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *GormStore) ExistsActiveCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referral_code = ? AND status = ?", code, models.ReferralClicked).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

// TransitionReferral writes r's lifecycle fields only if the stored status is
// still expected. Losing the race yields ErrConflict.
func (s *GormStore) TransitionReferral(ctx context.Context, r *models.Referral, expected models.ReferralStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("id = ? AND status = ?", r.ID, expected).
		Updates(map[string]interface{}{
			"status":           r.Status,
			"conversion_value": r.ConversionValue,
			"converted_at":     utcPtr(r.ConvertedAt),
			"order_id":         r.OrderID,
			"updated_at":       r.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) CreateCommission(ctx context.Context, c *models.Commission) error {
	c.EarnedAt = c.EarnedAt.UTC()
	c.PaidAt = utcPtr(c.PaidAt)
	c.CreatedAt = utcOrNow(c.CreatedAt)
	c.UpdatedAt = utcOrNow(c.UpdatedAt)
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *GormStore) FindCommissionByID(ctx context.Context, id uint) (*models.Commission, error) {
	var c models.Commission
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) FindCommissionByReferral(ctx context.Context, referralID uint) (*models.Commission, error) {
	var c models.Commission
	err := s.db.WithContext(ctx).
		Where("referral_id = ? AND type = ?", referralID, models.CommissionTypeReferral).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormStore) FindCommissionsByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) ([]models.Commission, error) {
	return s.findCommissions(ctx, s.db.Where("affiliate_id = ?", affiliateID), start, end)
}

func (s *GormStore) FindCommissionsByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) ([]models.Commission, error) {
	return s.findCommissions(ctx, s.db.Where("client_id = ?", clientID), start, end)
}

func (s *GormStore) FindCommissionsByRange(ctx context.Context, start, end time.Time) ([]models.Commission, error) {
	return s.findCommissions(ctx, s.db, start, end)
}

func (s *GormStore) findCommissions(ctx context.Context, q *gorm.DB, start, end time.Time) ([]models.Commission, error) {
	var out []models.Commission
	err := q.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", start.UTC(), end.UTC()).
		Order("created_at asc, id asc").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *GormStore) FindCommissionsByStatus(ctx context.Context, status models.CommissionStatus) ([]models.Commission, error) {
	var out []models.Commission
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("id asc").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *GormStore) TransitionCommission(ctx context.Context, c *models.Commission, expected models.CommissionStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Commission{}).
		Where("id = ? AND status = ?", c.ID, expected).
		Updates(map[string]interface{}{
			"status":     c.Status,
			"paid_at":    utcPtr(c.PaidAt),
			"updated_at": c.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) SumAmountByAffiliateAndRange(ctx context.Context, affiliateID uint, start, end time.Time) (decimal.Decimal, error) {
	return s.sumAmount(ctx, s.db.Where("affiliate_id = ? AND created_at >= ? AND created_at <= ?", affiliateID, start.UTC(), end.UTC()))
}

func (s *GormStore) SumAmountByClientAndRange(ctx context.Context, clientID uint, start, end time.Time) (decimal.Decimal, error) {
	return s.sumAmount(ctx, s.db.Where("client_id = ? AND created_at >= ? AND created_at <= ?", clientID, start.UTC(), end.UTC()))
}

func (s *GormStore) SumAmountByStatus(ctx context.Context, status models.CommissionStatus) (decimal.Decimal, error) {
	return s.sumAmount(ctx, s.db.Where("status = ?", status))
}

// sumAmount never returns NULL: no matching rows sum to zero.
func (s *GormStore) sumAmount(ctx context.Context, q *gorm.DB) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := q.WithContext(ctx).Model(&models.Commission{}).Select("COALESCE(SUM(amount), 0)").Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, translate(err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}

func (s *GormStore) FindAffiliateByID(ctx context.Context, id uint) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) FindAffiliateByIdentifier(ctx context.Context, identifier string) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := s.db.WithContext(ctx).Where("unique_identifier = ?", identifier).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *GormStore) FindAffiliatesByClient(ctx context.Context, clientID uint) ([]models.Affiliate, error) {
	var out []models.Affiliate
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).Order("id asc").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *GormStore) CountAffiliates(ctx context.Context, filter AffiliateCountFilter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Affiliate{}).Where("client_id = ?", filter.ClientID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		q = q.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		q = q.Where("created_at <= ?", filter.CreatedTo.UTC())
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, translate(err)
	}
	return count, nil
}

// utcPtr normalizes optional timestamps. SQLite compares stored times as
// text, so every bound and stored value has to share one offset.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
