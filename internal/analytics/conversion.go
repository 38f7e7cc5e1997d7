package analytics

import (
	"time"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

type TrendDirection string

const (
	TrendUp     TrendDirection = "UP"
	TrendDown   TrendDirection = "DOWN"
	TrendStable TrendDirection = "STABLE"
)

// ConversionRate is conversions/clicks as a percentage, the ratio rounded
// half-up to 4 places first. Zero clicks give a zero rate.
func ConversionRate(conversions, clicks int64) decimal.Decimal {
	if clicks <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(conversions).DivRound(decimal.NewFromInt(clicks), 4).Mul(hundred)
}

type Summary struct {
	Clicks            int64           `json:"total_clicks"`
	Conversions       int64           `json:"total_conversions"`
	Revenue           decimal.Decimal `json:"total_revenue"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	UniqueVisitors    int             `json:"unique_visitors"`
}

func Summarize(refs []models.Referral) Summary {
	s := Summary{Revenue: decimal.Zero, AverageOrderValue: decimal.Zero}
	visitors := make(map[string]struct{})
	for i := range refs {
		r := &refs[i]
		s.Clicks++
		if r.IsConverted() {
			s.Conversions++
			s.Revenue = s.Revenue.Add(r.Revenue())
		}
		if r.IPAddress != "" {
			visitors[r.IPAddress] = struct{}{}
		}
	}
	s.UniqueVisitors = len(visitors)
	s.ConversionRate = ConversionRate(s.Conversions, s.Clicks)
	if s.Conversions > 0 {
		s.AverageOrderValue = s.Revenue.DivRound(decimal.NewFromInt(s.Conversions), 2)
	}
	return s
}

type PeriodStat struct {
	Key              string          `json:"key"`
	Label            string          `json:"period"`
	Start            time.Time       `json:"period_start"`
	End              time.Time       `json:"period_end"`
	Clicks           int64           `json:"clicks"`
	Conversions      int64           `json:"conversions"`
	Revenue          decimal.Decimal `json:"revenue"`
	ConversionRate   decimal.Decimal `json:"conversion_rate"`
	TrendDirection   TrendDirection  `json:"trend_direction"`
	ChangePercentage decimal.Decimal `json:"change_percentage"`
}

// ConversionTrends emits one entry per bucket, empty buckets included. Each
// entry's trend compares its revenue with the bucket before it.
func ConversionTrends(buckets []Bucket, refs []models.Referral) []PeriodStat {
	parts := PartitionReferrals(buckets, refs)
	out := make([]PeriodStat, len(buckets))
	for i, b := range buckets {
		sum := Summarize(parts[i])
		out[i] = PeriodStat{
			Key:            b.Key,
			Label:          b.Label,
			Start:          b.Start,
			End:            b.End,
			Clicks:         sum.Clicks,
			Conversions:    sum.Conversions,
			Revenue:        sum.Revenue,
			ConversionRate: sum.ConversionRate,
		}
		if i == 0 {
			out[i].TrendDirection, out[i].ChangePercentage = TrendStable, decimal.Zero
			continue
		}
		out[i].TrendDirection, out[i].ChangePercentage = trend(out[i-1].Revenue, sum.Revenue)
	}
	return out
}

func trend(prev, cur decimal.Decimal) (TrendDirection, decimal.Decimal) {
	// No percentage exists against a zero baseline.
	if !prev.IsPositive() {
		return TrendStable, decimal.Zero
	}
	change := cur.Sub(prev).DivRound(prev, 4).Mul(hundred)
	switch change.Sign() {
	case 1:
		return TrendUp, change
	case -1:
		return TrendDown, change
	default:
		return TrendStable, change
	}
}

// ProjectedRevenue annualises the average bucket revenue. It is a straight
// line, not seasonally adjusted.
func ProjectedRevenue(stats []PeriodStat) decimal.Decimal {
	if len(stats) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, s := range stats {
		total = total.Add(s.Revenue)
	}
	return total.DivRound(decimal.NewFromInt(int64(len(stats))), 2).Mul(twelve)
}

// GrowthRate compares the first and last value of series as a percentage.
// Fewer than two values, or a zero first value, give zero.
func GrowthRate(series []decimal.Decimal) decimal.Decimal {
	if len(series) < 2 {
		return decimal.Zero
	}
	first, last := series[0], series[len(series)-1]
	if first.IsZero() {
		return decimal.Zero
	}
	return last.Sub(first).DivRound(first, 4).Mul(hundred)
}

// DailyCounts counts referrals per ISO day. With conversionsOnly set only
// converted referrals count, keyed by their conversion day.
func DailyCounts(refs []models.Referral, conversionsOnly bool) map[string]int64 {
	out := make(map[string]int64)
	for i := range refs {
		r := &refs[i]
		at := r.ClickedAt
		if conversionsOnly {
			if !r.IsConverted() {
				continue
			}
			if r.ConvertedAt != nil {
				at = *r.ConvertedAt
			}
		}
		out[at.Format("2006-01-02")]++
	}
	return out
}
