// Package listing filters and summarizes the public shortage list.
// Everything here is pure; handlers and the state reducer share it.
package listing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/diewo77/bloodboard/internal/models"
)

// All is the dropdown value meaning "no constraint".
const All = "all"

const (
	MsgNoShortages = "No blood shortages reported at this time."
	MsgNoMatches   = "No shortages match your filters."
)

// Filter is the search box plus the three dropdowns. Empty fields do not constrain.
type Filter struct {
	Search    string `json:"q"`
	BloodType string `json:"blood_type"`
	District  string `json:"district"`
	Status    string `json:"status"`
}

func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if v == All {
		return ""
	}
	return v
}

// Normalize maps the "all" sentinel to the empty string.
func (f Filter) Normalize() Filter {
	return Filter{
		Search:    strings.TrimSpace(f.Search),
		BloodType: normalizeValue(f.BloodType),
		District:  normalizeValue(f.District),
		Status:    normalizeValue(f.Status),
	}
}

// Active reports whether any constraint is set.
func (f Filter) Active() bool {
	return f.Normalize() != Filter{}
}

// Match reports whether s satisfies every active predicate of f.
func (f Filter) Match(s *models.Shortage) bool {
	f = f.Normalize()
	if f.Search != "" && !matchesSearch(s, strings.ToLower(f.Search)) {
		return false
	}
	if f.BloodType != "" && string(s.BloodType) != f.BloodType {
		return false
	}
	if f.District != "" && (s.Center == nil || s.Center.District != f.District) {
		return false
	}
	if f.Status != "" && string(s.Status) != f.Status {
		return false
	}
	return true
}

func matchesSearch(s *models.Shortage, q string) bool {
	fields := []string{string(s.BloodType)}
	if c := s.Center; c != nil {
		fields = append(fields, c.Name, c.District, models.Deref(c.Address))
	}
	for _, v := range fields {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// Apply returns the shortages matching f in their original order.
func Apply(shortages []models.Shortage, f Filter) []models.Shortage {
	out := make([]models.Shortage, 0, len(shortages))
	for i := range shortages {
		if f.Match(&shortages[i]) {
			out = append(out, shortages[i])
		}
	}
	return out
}

// Summary counts the shortages that need attention.
type Summary struct {
	Critical int `json:"critical"`
	Low      int `json:"low"`
}

func Summarize(shortages []models.Shortage) Summary {
	var s Summary
	for _, sh := range shortages {
		switch sh.Status {
		case models.StatusCritical:
			s.Critical++
		case models.StatusLow:
			s.Low++
		}
	}
	return s
}

// Any reports whether the banner should be shown.
func (s Summary) Any() bool { return s.Critical > 0 || s.Low > 0 }

func (s Summary) CriticalLabel() string { return countLabel(s.Critical, "Critical") }

func (s Summary) LowLabel() string { return countLabel(s.Low, "Low") }

func countLabel(n int, kind string) string {
	noun := "Shortages"
	if n == 1 {
		noun = "Shortage"
	}
	return fmt.Sprintf("%d %s %s", n, kind, noun)
}

// Districts returns the unique districts of centers, sorted.
func Districts(centers []models.Center) []string {
	seen := make(map[string]struct{}, len(centers))
	out := make([]string, 0, len(centers))
	for _, c := range centers {
		if _, ok := seen[c.District]; ok || c.District == "" {
			continue
		}
		seen[c.District] = struct{}{}
		out = append(out, c.District)
	}
	sort.Strings(out)
	return out
}

// EmptyMessage is the text shown when nothing is visible, or "" when something is.
func EmptyMessage(total, visible int) string {
	switch {
	case visible > 0:
		return ""
	case total == 0:
		return MsgNoShortages
	default:
		return MsgNoMatches
	}
}
