package analytics

import (
	"strings"
	"time"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
)

type EarningsPoint struct {
	Key         string          `json:"key"`
	Period      string          `json:"period"`
	Desktop     decimal.Decimal `json:"desktop"`
	Mobile      decimal.Decimal `json:"mobile"`
	Total       decimal.Decimal `json:"total"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
}

// IsMobileDevice reports whether a device class counts towards the mobile
// earnings partition. Everything else is desktop.
func IsMobileDevice(deviceType string) bool {
	switch strings.ToLower(deviceType) {
	case "mobile", "tablet":
		return true
	}
	return false
}

// EarningsTrend sums commission amounts per bucket, split by the device class
// captured when the referral was clicked.
func EarningsTrend(buckets []Bucket, comms []models.Commission) []EarningsPoint {
	parts := PartitionCommissions(buckets, comms)
	out := make([]EarningsPoint, len(buckets))
	for i, b := range buckets {
		p := EarningsPoint{
			Key:         b.Key,
			Period:      b.Label,
			Desktop:     decimal.Zero,
			Mobile:      decimal.Zero,
			PeriodStart: b.Start,
			PeriodEnd:   b.End,
		}
		for _, c := range parts[i] {
			if IsMobileDevice(c.DeviceType) {
				p.Mobile = p.Mobile.Add(c.Amount)
			} else {
				p.Desktop = p.Desktop.Add(c.Amount)
			}
		}
		p.Total = p.Desktop.Add(p.Mobile)
		out[i] = p
	}
	return out
}

type EarningsTotals struct {
	Desktop decimal.Decimal `json:"total_desktop"`
	Mobile  decimal.Decimal `json:"total_mobile"`
	Total   decimal.Decimal `json:"total_earnings"`
}

func SumEarnings(points []EarningsPoint) EarningsTotals {
	t := EarningsTotals{Desktop: decimal.Zero, Mobile: decimal.Zero, Total: decimal.Zero}
	for _, p := range points {
		t.Desktop = t.Desktop.Add(p.Desktop)
		t.Mobile = t.Mobile.Add(p.Mobile)
		t.Total = t.Total.Add(p.Total)
	}
	return t
}

// EarningsGrowth is the growth rate across the point totals.
func EarningsGrowth(points []EarningsPoint) decimal.Decimal {
	series := make([]decimal.Decimal, len(points))
	for i, p := range points {
		series[i] = p.Total
	}
	return GrowthRate(series)
}
