package anthropic

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/calebwray/relay"
)

const rateLimitPrefix = "anthropic-ratelimit-"

var rateLimitFields = []string{"limit", "remaining", "reset"}

// parseRateLimitHeaders extracts anthropic-ratelimit-<resource>-<field>
// headers into one record per resource, plus the retry-after hint in
// seconds. Absent headers yield an empty list and nil.
func parseRateLimitHeaders(h http.Header) ([]relay.RateLimit, *int) {
	byResource := map[string]*relay.RateLimit{}

	for name, values := range h {
		rest, found := strings.CutPrefix(strings.ToLower(name), rateLimitPrefix)
		if !found || len(values) == 0 {
			continue
		}

		var resource, field string
		for _, f := range rateLimitFields {
			if r, found := strings.CutSuffix(rest, "-"+f); found {
				resource, field = r, f
				break
			}
		}
		if resource == "" {
			continue
		}

		rl := byResource[resource]
		if rl == nil {
			rl = &relay.RateLimit{Name: resource}
			byResource[resource] = rl
		}

		value := values[0]
		switch field {
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				rl.Limit = &n
			}
		case "remaining":
			if n, err := strconv.Atoi(value); err == nil {
				rl.Remaining = &n
			}
		case "reset":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				rl.ResetsAt = &t
			}
		}
	}

	// Header map iteration is unordered; sort by resource name.
	names := make([]string, 0, len(byResource))
	for name := range byResource {
		names = append(names, name)
	}
	sort.Strings(names)

	limits := make([]relay.RateLimit, 0, len(names))
	for _, name := range names {
		limits = append(limits, *byResource[name])
	}

	var retryAfter *int
	if v := h.Get("retry-after"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			retryAfter = &n
		}
	}
	return limits, retryAfter
}
