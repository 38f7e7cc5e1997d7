package analytics

import (
	"sort"

	"reftrack/internal/models"

	"github.com/shopspring/decimal"
)

type TopLink struct {
	ReferralCode   string          `json:"referral_code"`
	TargetURL      string          `json:"target_url"`
	Clicks         int64           `json:"clicks"`
	Conversions    int64           `json:"conversions"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// TopLinks groups refs by referral code and ranks the groups by revenue.
// Equal revenues keep first-seen order. limit <= 0 returns every group.
func TopLinks(refs []models.Referral, limit int) []TopLink {
	index := make(map[string]int)
	var links []TopLink
	for i := range refs {
		r := &refs[i]
		pos, ok := index[r.ReferralCode]
		if !ok {
			pos = len(links)
			index[r.ReferralCode] = pos
			links = append(links, TopLink{ReferralCode: r.ReferralCode, TargetURL: r.TargetURL, Revenue: decimal.Zero})
		}
		l := &links[pos]
		l.Clicks++
		if r.IsConverted() {
			l.Conversions++
			l.Revenue = l.Revenue.Add(r.Revenue())
		}
	}
	for i := range links {
		links[i].ConversionRate = ConversionRate(links[i].Conversions, links[i].Clicks)
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Revenue.GreaterThan(links[j].Revenue)
	})
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links
}

type AffiliateRanking struct {
	AffiliateID      uint            `json:"affiliate_id"`
	Name             string          `json:"name"`
	UniqueIdentifier string          `json:"unique_identifier"`
	Clicks           int64           `json:"clicks"`
	Conversions      int64           `json:"conversions"`
	ConversionRate   decimal.Decimal `json:"conversion_rate"`
	Revenue          decimal.Decimal `json:"revenue"`
	Commissions      decimal.Decimal `json:"commissions"`
}

// TopAffiliates ranks affiliates by the revenue of their referrals. Affiliates
// without activity still rank, after everyone with revenue.
func TopAffiliates(affiliates []models.Affiliate, refs []models.Referral, comms []models.Commission, limit int) []AffiliateRanking {
	index := make(map[uint]int, len(affiliates))
	out := make([]AffiliateRanking, len(affiliates))
	for i, a := range affiliates {
		index[a.ID] = i
		out[i] = AffiliateRanking{
			AffiliateID:      a.ID,
			Name:             a.Name,
			UniqueIdentifier: a.UniqueIdentifier,
			Revenue:          decimal.Zero,
			Commissions:      decimal.Zero,
		}
	}
	for i := range refs {
		pos, ok := index[refs[i].AffiliateID]
		if !ok {
			continue
		}
		out[pos].Clicks++
		if refs[i].IsConverted() {
			out[pos].Conversions++
			out[pos].Revenue = out[pos].Revenue.Add(refs[i].Revenue())
		}
	}
	for _, c := range comms {
		if pos, ok := index[c.AffiliateID]; ok {
			out[pos].Commissions = out[pos].Commissions.Add(c.Amount)
		}
	}
	for i := range out {
		out[i].ConversionRate = ConversionRate(out[i].Conversions, out[i].Clicks)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
