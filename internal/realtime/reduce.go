package realtime

import (
	"slices"

	"github.com/localnerve/reportdesk/internal/models"
)

// Apply folds one change event into a list keyed by primary key and returns the new list.
// The input list is never modified.
//
//   - INSERT upserts the new row
//   - UPDATE replaces the row with the same key; rows not in the list are ignored
//   - DELETE removes the row keyed by the old row (or the new row when old is absent)
//
// Applying the same event twice yields the same list as applying it once.
func Apply[T Keyed](list []T, ev ChangeEvent[T]) []T {
	switch ev.Type {
	case Insert:
		if ev.New == nil {
			return list
		}
		key := (*ev.New).Key()
		out := slices.Clone(list)
		if i := indexOf(out, key); i >= 0 {
			out[i] = *ev.New
			return out
		}
		return append(out, *ev.New)

	case Update:
		if ev.New == nil {
			return list
		}
		i := indexOf(list, (*ev.New).Key())
		if i < 0 {
			return list
		}
		out := slices.Clone(list)
		out[i] = *ev.New
		return out

	case Delete:
		row := ev.Old
		if row == nil {
			row = ev.New
		}
		if row == nil {
			return list
		}
		key := (*row).Key()
		if indexOf(list, key) < 0 {
			return list
		}
		out := make([]T, 0, len(list))
		for _, item := range list {
			if item.Key() != key {
				out = append(out, item)
			}
		}
		return out
	}

	return list
}

// ApplySorted applies the event and re-sorts the result with cmp
func ApplySorted[T Keyed](list []T, ev ChangeEvent[T], cmp func(a, b T) int) []T {
	out := Apply(list, ev)
	if cmp == nil {
		return out
	}
	if len(out) > 0 && sameBacking(out, list) {
		out = slices.Clone(out)
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// ApplyDomainToReports patches a domain update into the nested domain lists of reports
func ApplyDomainToReports(reports []models.Report, ev ChangeEvent[models.Domain]) []models.Report {
	if ev.Type != Update || ev.New == nil {
		return reports
	}
	patched := *ev.New

	out := slices.Clone(reports)
	changed := false
	for ri := range out {
		if patched.ReportID != "" && out[ri].ID != patched.ReportID {
			continue
		}
		for di, d := range out[ri].Domains {
			if d.ID != patched.ID {
				continue
			}
			domains := slices.Clone(out[ri].Domains)
			domains[di].Status = patched.Status
			domains[di].RejectionReason = patched.RejectionReason
			domains[di].ReviewedBy = patched.ReviewedBy
			domains[di].ReviewedAt = patched.ReviewedAt
			out[ri].Domains = domains
			changed = true
		}
	}

	if !changed {
		return reports
	}
	return out
}

// SitesByName orders sites by name
func SitesByName(a, b models.Site) int {
	switch {
	case a.Name < b.Name:
		return -1
	case a.Name > b.Name:
		return 1
	}
	return 0
}

func indexOf[T Keyed](list []T, key string) int {
	for i, item := range list {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

func sameBacking[T any](a, b []T) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
