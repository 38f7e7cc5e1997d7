package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reftrack/internal/models"
)

type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
	Yearly  Granularity = "yearly"
)

// ParseGranularity defaults an empty value to daily.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Daily, nil
	case Daily, Weekly, Monthly, Yearly:
		return g, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// Bucket is the half-open interval [Start, End). The last bucket of a range
// also owns the instant End when the range end was clipped onto it.
type Bucket struct {
	Key         string      `json:"key"`
	Label       string      `json:"label"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Granularity Granularity `json:"granularity"`
}

func (b Bucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Buckets splits [start, end] into ordered, contiguous buckets. Daily, monthly
// and yearly buckets follow the calendar in start's location, one per unit that
// the range touches. Weekly buckets are 7-day windows anchored at start with the
// last one clipped to end. An inverted range yields no buckets.
func Buckets(start, end time.Time, g Granularity) []Bucket {
	if end.Before(start) {
		return nil
	}
	if g == Weekly {
		return weeklyBuckets(start, end)
	}

	var out []Bucket
	for cur := alignStart(start, g); !cur.After(end); {
		next := advance(cur, g)
		out = append(out, Bucket{
			Key:         bucketKey(cur, g),
			Label:       bucketLabel(cur, g),
			Start:       cur,
			End:         next,
			Granularity: g,
		})
		cur = next
	}
	return out
}

func weeklyBuckets(start, end time.Time) []Bucket {
	var out []Bucket
	cur := start
	for n := 1; ; n++ {
		next := cur.AddDate(0, 0, 7)
		last := !next.Before(end)
		if last {
			next = end
		}
		out = append(out, Bucket{
			Key:         cur.Format("2006-01-02"),
			Label:       fmt.Sprintf("Week %d", n),
			Start:       cur,
			End:         next,
			Granularity: Weekly,
		})
		if last {
			return out
		}
		cur = next
	}
}

func alignStart(t time.Time, g Granularity) time.Time {
	loc := t.Location()
	switch g {
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
}

func advance(t time.Time, g Granularity) time.Time {
	switch g {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func bucketKey(t time.Time, g Granularity) string {
	switch g {
	case Monthly:
		return t.Format("2006-01")
	case Yearly:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

func bucketLabel(t time.Time, g Granularity) string {
	switch g {
	case Monthly:
		return t.Month().String()
	case Yearly:
		return t.Format("2006")
	default:
		return t.Format("2006-01-02")
	}
}

// bucketIndex returns the bucket owning t, or -1 when t is outside the range.
func bucketIndex(buckets []Bucket, t time.Time) int {
	if len(buckets) == 0 {
		return -1
	}
	i := sort.Search(len(buckets), func(i int) bool { return buckets[i].End.After(t) })
	if i < len(buckets) {
		if !buckets[i].Contains(t) {
			return -1
		}
		return i
	}
	if t.Equal(buckets[len(buckets)-1].End) {
		return len(buckets) - 1
	}
	return -1
}

// PartitionReferrals groups refs by click time. The result is index-aligned
// with buckets; referrals outside every bucket are dropped.
func PartitionReferrals(buckets []Bucket, refs []models.Referral) [][]models.Referral {
	out := make([][]models.Referral, len(buckets))
	for _, r := range refs {
		if i := bucketIndex(buckets, r.ClickedAt); i >= 0 {
			out[i] = append(out[i], r)
		}
	}
	return out
}

// PartitionCommissions groups comms by CreatedAt.
func PartitionCommissions(buckets []Bucket, comms []models.Commission) [][]models.Commission {
	out := make([][]models.Commission, len(buckets))
	for _, c := range comms {
		if i := bucketIndex(buckets, c.CreatedAt); i >= 0 {
			out[i] = append(out[i], c)
		}
	}
	return out
}
