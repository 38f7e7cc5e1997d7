package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reftrack/internal/analytics"
	"reftrack/internal/models"
	"reftrack/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	referralWindowMonths  = 1
	earningsWindowMonths  = 12
	rankingWindowMonths   = 6
	defaultTopLimit       = 10
	defaultTrendDays      = 30
	defaultDashboardDays  = 30
	defaultEarningsPageSz = 20
)

type TrackingReport struct {
	AffiliateID      uint                       `json:"affiliate_id"`
	Start            time.Time                  `json:"start"`
	End              time.Time                  `json:"end"`
	Summary          analytics.Summary          `json:"summary"`
	ClicksByDay      map[string]int64           `json:"clicks_by_day"`
	ConversionsByDay map[string]int64           `json:"conversions_by_day"`
	TopLinks         []analytics.TopLink        `json:"top_links"`
	RevenueBySource  map[string]decimal.Decimal `json:"revenue_by_source"`
	Devices          analytics.DeviceStats      `json:"devices"`
	Geo              analytics.GeoStats         `json:"geo"`
}

type ConversionReport struct {
	AffiliateID           uint                       `json:"affiliate_id"`
	Period                analytics.Granularity      `json:"period"`
	Start                 time.Time                  `json:"start"`
	End                   time.Time                  `json:"end"`
	TotalClicks           int64                      `json:"total_clicks"`
	TotalConversions      int64                      `json:"total_conversions"`
	TotalRevenue          decimal.Decimal            `json:"total_revenue"`
	OverallConversionRate decimal.Decimal            `json:"overall_conversion_rate"`
	ClicksByPeriod        map[string]int64           `json:"clicks_by_period"`
	ConversionsByPeriod   map[string]int64           `json:"conversions_by_period"`
	RatesByPeriod         map[string]decimal.Decimal `json:"conversion_rate_by_period"`
	Trends                []analytics.PeriodStat     `json:"trends"`
	ProjectedRevenue      decimal.Decimal            `json:"projected_revenue"`
	GrowthRate            decimal.Decimal            `json:"growth_rate"`
}

type TrendReport struct {
	PeriodDays          int              `json:"period_days"`
	TotalClicks         int64            `json:"total_clicks"`
	TotalConversions    int64            `json:"total_conversions"`
	TotalRevenue        decimal.Decimal  `json:"total_revenue"`
	AverageDailyClicks  decimal.Decimal  `json:"average_daily_clicks"`
	AverageDailyRevenue decimal.Decimal  `json:"average_daily_revenue"`
	DailyClicks         map[string]int64 `json:"daily_clicks"`
}

type EarningsFilter struct {
	AffiliateID *uint
	ClientID    *uint
}

type EarningsReport struct {
	AffiliateID *uint                     `json:"affiliate_id,omitempty"`
	ClientID    *uint                     `json:"client_id,omitempty"`
	Period      analytics.Granularity     `json:"period"`
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	Totals      analytics.EarningsTotals  `json:"totals"`
	GrowthRate  decimal.Decimal           `json:"growth_rate"`
	Data        []analytics.EarningsPoint `json:"data"`
}

type ClientDashboard struct {
	ClientID          uint            `json:"client_id"`
	PeriodDays        int             `json:"period_days"`
	TotalAffiliates   int64           `json:"total_affiliates"`
	NewAffiliates     int64           `json:"new_affiliates"`
	ActiveAffiliates  int64           `json:"active_affiliates"`
	PendingAffiliates int64           `json:"pending_affiliates"`
	TotalClicks       int64           `json:"total_clicks"`
	TotalConversions  int64           `json:"total_conversions"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalCommissions  decimal.Decimal `json:"total_commissions"`
}

// AnalyticsService reads a range from the store and hands it to the pure
// aggregations in package analytics. It never writes.
type AnalyticsService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyticsService(store repository.Store, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// resolveRange fills a zero end with now and a zero start with end minus
// months. Inverted ranges are rejected.
func (s *AnalyticsService) resolveRange(start, end time.Time, months int) (time.Time, time.Time, error) {
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = end.AddDate(0, -months, 0)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, validationError("start must not be after end")
	}
	return start, end, nil
}

func (s *AnalyticsService) requireAffiliate(ctx context.Context, id uint) error {
	if _, err := s.store.FindAffiliateByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("affiliate %d: %w", id, ErrUnknownAffiliate)
		}
		return err
	}
	return nil
}

func (s *AnalyticsService) affiliateReferrals(ctx context.Context, affiliateID uint, start, end time.Time) ([]models.Referral, error) {
	if err := s.requireAffiliate(ctx, affiliateID); err != nil {
		return nil, err
	}
	refs, err := s.store.FindReferralsByAffiliateAndRange(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}
	return refs, ctx.Err()
}

func (s *AnalyticsService) ReferralStatistics(ctx context.Context, affiliateID uint, start, end time.Time) (*TrackingReport, error) {
	start, end, err := s.resolveRange(start, end, referralWindowMonths)
	if err != nil {
		return nil, err
	}
	refs, err := s.affiliateReferrals(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}
	return &TrackingReport{
		AffiliateID:      affiliateID,
		Start:            start,
		End:              end,
		Summary:          analytics.Summarize(refs),
		ClicksByDay:      analytics.DailyCounts(refs, false),
		ConversionsByDay: analytics.DailyCounts(refs, true),
		TopLinks:         analytics.TopLinks(refs, defaultTopLimit),
		RevenueBySource:  analytics.RevenueBySource(refs),
		Devices:          analytics.DeviceBreakdown(refs),
		Geo:              analytics.GeoBreakdown(refs),
	}, nil
}

func (s *AnalyticsService) ConversionAnalytics(ctx context.Context, affiliateID uint, period string, start, end time.Time) (*ConversionReport, error) {
	g, err := analytics.ParseGranularity(period)
	if err != nil {
		return nil, validationError("%v", err)
	}
	start, end, err = s.resolveRange(start, end, referralWindowMonths)
	if err != nil {
		return nil, err
	}
	refs, err := s.affiliateReferrals(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}

	summary := analytics.Summarize(refs)
	trends := analytics.ConversionTrends(analytics.Buckets(start, end, g), refs)
	report := &ConversionReport{
		AffiliateID:           affiliateID,
		Period:                g,
		Start:                 start,
		End:                   end,
		TotalClicks:           summary.Clicks,
		TotalConversions:      summary.Conversions,
		TotalRevenue:          summary.Revenue,
		OverallConversionRate: summary.ConversionRate,
		ClicksByPeriod:        make(map[string]int64, len(trends)),
		ConversionsByPeriod:   make(map[string]int64, len(trends)),
		RatesByPeriod:         make(map[string]decimal.Decimal, len(trends)),
		Trends:                trends,
		ProjectedRevenue:      analytics.ProjectedRevenue(trends),
	}
	revenues := make([]decimal.Decimal, len(trends))
	for i, t := range trends {
		report.ClicksByPeriod[t.Key] = t.Clicks
		report.ConversionsByPeriod[t.Key] = t.Conversions
		report.RatesByPeriod[t.Key] = t.ConversionRate
		revenues[i] = t.Revenue
	}
	report.GrowthRate = analytics.GrowthRate(revenues)
	return report, nil
}

func (s *AnalyticsService) TopPerformingReferrals(ctx context.Context, affiliateID uint, limit int, start, end time.Time) ([]analytics.TopLink, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	start, end, err := s.resolveRange(start, end, referralWindowMonths)
	if err != nil {
		return nil, err
	}
	refs, err := s.affiliateReferrals(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}
	return analytics.TopLinks(refs, limit), nil
}

// ReferralTrends summarises the last days days, for one affiliate or for all.
func (s *AnalyticsService) ReferralTrends(ctx context.Context, days int, affiliateID *uint) (*TrendReport, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	end := s.now()
	start := end.AddDate(0, 0, -days)

	refs, err := s.referralsFor(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}

	summary := analytics.Summarize(refs)
	n := decimal.NewFromInt(int64(days))
	return &TrendReport{
		PeriodDays:          days,
		TotalClicks:         summary.Clicks,
		TotalConversions:    summary.Conversions,
		TotalRevenue:        summary.Revenue,
		AverageDailyClicks:  decimal.NewFromInt(summary.Clicks).DivRound(n, 2),
		AverageDailyRevenue: summary.Revenue.DivRound(n, 2),
		DailyClicks:         analytics.DailyCounts(refs, false),
	}, nil
}

func (s *AnalyticsService) SourceAnalytics(ctx context.Context, affiliateID *uint, start, end time.Time) (map[string]int64, error) {
	start, end, err := s.resolveRange(start, end, referralWindowMonths)
	if err != nil {
		return nil, err
	}
	refs, err := s.referralsFor(ctx, affiliateID, start, end)
	if err != nil {
		return nil, err
	}
	return analytics.SourceCounts(refs), nil
}

func (s *AnalyticsService) referralsFor(ctx context.Context, affiliateID *uint, start, end time.Time) ([]models.Referral, error) {
	if affiliateID != nil {
		return s.affiliateReferrals(ctx, *affiliateID, start, end)
	}
	refs, err := s.store.FindReferralsByRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return refs, ctx.Err()
}

func (s *AnalyticsService) AffiliateEarnings(ctx context.Context, affiliateID uint, period string, start, end time.Time) (*EarningsReport, error) {
	return s.earnings(ctx, EarningsFilter{AffiliateID: &affiliateID}, period, start, end)
}

// EarningsSummary reports earnings for one client, or for everyone when
// clientID is nil.
func (s *AnalyticsService) EarningsSummary(ctx context.Context, clientID *uint, period string, start, end time.Time) (*EarningsReport, error) {
	return s.earnings(ctx, EarningsFilter{ClientID: clientID}, period, start, end)
}

// EarningsPage returns one page of earnings points plus the total number of
// points in the range.
func (s *AnalyticsService) EarningsPage(ctx context.Context, filter EarningsFilter, period string, start, end time.Time, offset, limit int) ([]analytics.EarningsPoint, int, error) {
	if offset < 0 {
		return nil, 0, validationError("offset must not be negative")
	}
	if limit <= 0 {
		limit = defaultEarningsPageSz
	}
	report, err := s.earnings(ctx, filter, period, start, end)
	if err != nil {
		return nil, 0, err
	}
	total := len(report.Data)
	if offset >= total {
		return []analytics.EarningsPoint{}, total, nil
	}
	stop := offset + limit
	if stop > total {
		stop = total
	}
	return report.Data[offset:stop], total, nil
}

func (s *AnalyticsService) earnings(ctx context.Context, filter EarningsFilter, period string, start, end time.Time) (*EarningsReport, error) {
	g, err := analytics.ParseGranularity(period)
	if err != nil {
		return nil, validationError("%v", err)
	}
	start, end, err = s.resolveRange(start, end, earningsWindowMonths)
	if err != nil {
		return nil, err
	}

	var comms []models.Commission
	switch {
	case filter.AffiliateID != nil:
		if err := s.requireAffiliate(ctx, *filter.AffiliateID); err != nil {
			return nil, err
		}
		comms, err = s.store.FindCommissionsByAffiliateAndRange(ctx, *filter.AffiliateID, start, end)
	case filter.ClientID != nil:
		comms, err = s.store.FindCommissionsByClientAndRange(ctx, *filter.ClientID, start, end)
	default:
		comms, err = s.store.FindCommissionsByRange(ctx, start, end)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points := analytics.EarningsTrend(analytics.Buckets(start, end, g), comms)
	return &EarningsReport{
		AffiliateID: filter.AffiliateID,
		ClientID:    filter.ClientID,
		Period:      g,
		Start:       start,
		End:         end,
		Totals:      analytics.SumEarnings(points),
		GrowthRate:  analytics.EarningsGrowth(points),
		Data:        points,
	}, nil
}

func (s *AnalyticsService) TopAffiliates(ctx context.Context, clientID uint, limit int, start, end time.Time) ([]analytics.AffiliateRanking, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	start, end, err := s.resolveRange(start, end, rankingWindowMonths)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.store.FindAffiliatesByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	refs, err := s.store.FindReferralsByClientAndRange(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}
	comms, err := s.store.FindCommissionsByClientAndRange(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analytics.TopAffiliates(affiliates, refs, comms, limit), nil
}

func (s *AnalyticsService) ClientDashboard(ctx context.Context, clientID uint, days int) (*ClientDashboard, error) {
	if days <= 0 {
		days = defaultDashboardDays
	}
	end := s.now()
	start := end.AddDate(0, 0, -days)

	d := &ClientDashboard{ClientID: clientID, PeriodDays: days}
	counts := []struct {
		dst    *int64
		filter repository.AffiliateCountFilter
	}{
		{&d.TotalAffiliates, repository.AffiliateCountFilter{ClientID: clientID}},
		{&d.NewAffiliates, repository.AffiliateCountFilter{ClientID: clientID, CreatedFrom: &start, CreatedTo: &end}},
		{&d.ActiveAffiliates, repository.AffiliateCountFilter{ClientID: clientID, Status: models.AffiliateActive}},
		{&d.PendingAffiliates, repository.AffiliateCountFilter{ClientID: clientID, Status: models.AffiliatePending}},
	}
	for _, c := range counts {
		n, err := s.store.CountAffiliates(ctx, c.filter)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	refs, err := s.store.FindReferralsByClientAndRange(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}
	summary := analytics.Summarize(refs)
	d.TotalClicks = summary.Clicks
	d.TotalConversions = summary.Conversions
	d.ConversionRate = summary.ConversionRate
	d.TotalRevenue = summary.Revenue

	d.TotalCommissions, err = s.store.SumAmountByClientAndRange(ctx, clientID, start, end)
	if err != nil {
		return nil, err
	}
	return d, ctx.Err()
}

func (s *AnalyticsService) TotalRevenue(ctx context.Context, affiliateID uint, start, end time.Time) (decimal.Decimal, error) {
	start, end, err := s.resolveRange(start, end, referralWindowMonths)
	if err != nil {
		return decimal.Zero, err
	}
	refs, err := s.affiliateReferrals(ctx, affiliateID, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return analytics.Summarize(refs).Revenue, nil
}
