package analytics

import (
	"net"
	"regexp"
	"sort"
	"strings"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
)

const (
	unknownValue    = "Unknown"
	topLocationsMax = 10
)

type DeviceStats struct {
	ByDevice               map[string]int64           `json:"device_types"`
	ByBrowser              map[string]int64           `json:"browsers"`
	ByOS                   map[string]int64           `json:"operating_systems"`
	ConversionRateByDevice map[string]decimal.Decimal `json:"conversion_rate_by_device"`
}

func DeviceBreakdown(refs []models.Referral) DeviceStats {
	s := DeviceStats{
		ByDevice:               make(map[string]int64),
		ByBrowser:              make(map[string]int64),
		ByOS:                   make(map[string]int64),
		ConversionRateByDevice: make(map[string]decimal.Decimal),
	}
	conversions := make(map[string]int64)
	for i := range refs {
		r := &refs[i]
		device := orUnknown(r.DeviceType)
		s.ByDevice[device]++
		s.ByBrowser[orUnknown(r.BrowserName)]++
		s.ByOS[orUnknown(r.OperatingSystem)]++
		if r.IsConverted() {
			conversions[device]++
		}
	}
	for device, clicks := range s.ByDevice {
		s.ConversionRateByDevice[device] = ConversionRate(conversions[device], clicks)
	}
	return s
}

type LocationStat struct {
	Country     string          `json:"country"`
	City        string          `json:"city"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type GeoStats struct {
	ClicksByCountry      map[string]int64           `json:"clicks_by_country"`
	ConversionsByCountry map[string]int64           `json:"conversions_by_country"`
	RevenueByCountry     map[string]decimal.Decimal `json:"revenue_by_country"`
	ClicksByCity         map[string]int64           `json:"clicks_by_city"`
	TopLocations         []LocationStat             `json:"top_locations"`
}

// GeoBreakdown groups by country and city. TopLocations holds the ten
// country/city pairs with the most revenue.
func GeoBreakdown(refs []models.Referral) GeoStats {
	s := GeoStats{
		ClicksByCountry:      make(map[string]int64),
		ConversionsByCountry: make(map[string]int64),
		RevenueByCountry:     make(map[string]decimal.Decimal),
		ClicksByCity:         make(map[string]int64),
	}
	type locKey struct{ country, city string }
	index := make(map[locKey]int)
	var locations []LocationStat
	for i := range refs {
		r := &refs[i]
		country, city := orUnknown(r.Country), orUnknown(r.City)
		s.ClicksByCountry[country]++
		s.ClicksByCity[city]++

		k := locKey{country, city}
		pos, ok := index[k]
		if !ok {
			pos = len(locations)
			index[k] = pos
			locations = append(locations, LocationStat{Country: country, City: city, Revenue: decimal.Zero})
		}
		locations[pos].Clicks++

		if r.IsConverted() {
			s.ConversionsByCountry[country]++
			s.RevenueByCountry[country] = s.RevenueByCountry[country].Add(r.Revenue())
			locations[pos].Conversions++
			locations[pos].Revenue = locations[pos].Revenue.Add(r.Revenue())
		}
	}
	sort.SliceStable(locations, func(i, j int) bool {
		return locations[i].Revenue.GreaterThan(locations[j].Revenue)
	})
	if len(locations) > topLocationsMax {
		locations = locations[:topLocationsMax]
	}
	s.TopLocations = locations
	return s
}

// SourceCounts counts referrals per source domain; referrals without a source
// count as "direct".
func SourceCounts(refs []models.Referral) map[string]int64 {
	out := make(map[string]int64)
	for i := range refs {
		out[ExtractDomain(refs[i].SourceURL)]++
	}
	return out
}

func RevenueBySource(refs []models.Referral) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for i := range refs {
		if !refs[i].IsConverted() {
			continue
		}
		domain := ExtractDomain(refs[i].SourceURL)
		out[domain] = out[domain].Add(refs[i].Revenue())
	}
	return out
}

var schemePrefix = regexp.MustCompile(`(?i)^(https?://)?(www\.)?`)

// ExtractDomain reduces a source URL to its host name. The scheme, a leading
// "www.", the port and everything from the first "/", "?" or "#" are dropped.
func ExtractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "direct"
	}
	domain := schemePrefix.ReplaceAllString(raw, "")
	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}
	if host, _, err := net.SplitHostPort(domain); err == nil {
		domain = host
	}
	if domain == "" || strings.ContainsAny(domain, " \t\n") {
		return "unknown"
	}
	return strings.ToLower(domain)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
