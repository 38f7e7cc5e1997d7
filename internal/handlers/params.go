package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// optionalUint reads a positive integer query parameter. A missing parameter
// yields nil.
func optionalUint(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	u := uint(v)
	return &u, true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// timeRange reads RFC 3339 start and end parameters. Missing values come back
// zero so the service applies its default window.
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	var start, end time.Time
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &start}, {"end", &end}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, p.name+" must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		*p.dst = t.UTC()
	}
	return start, end, true
}
