// Package pagination computes page windows and the shareable page/site query state.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

// AllSites is the site filter value meaning every assigned site
const AllSites = "all"

// Page is a clamped page window over Total items
type Page struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Offset     int   `json:"offset"`
	Limit      int   `json:"limit"`
	// Start and End are the 1-based positions of the first and last item on the page
	Start int `json:"start"`
	End   int `json:"end"`
}

// Compute clamps page into [1, TotalPages] (1 when there is nothing to show)
func Compute(total int64, perPage, page int) Page {
	if perPage < 1 {
		perPage = 1
	}
	if total < 0 {
		total = 0
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	last := totalPages
	if last < 1 {
		last = 1
	}
	if page < 1 {
		page = 1
	}
	if page > last {
		page = last
	}

	offset := (page - 1) * perPage
	end := offset + perPage
	if int64(end) > total {
		end = int(total)
	}
	start := offset + 1
	if end == 0 {
		start = 0
	}

	return Page{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Offset:     offset,
		Limit:      perPage,
		Start:      start,
		End:        end,
	}
}

// Slice returns the items that fall on p
func Slice[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

// State is the page and site filter carried in the query string
type State struct {
	Page int    `json:"page"`
	Site string `json:"site"`
}

// FromQuery reads page and site; bad or missing values fall back to page 1 and all sites
func FromQuery(values url.Values) State {
	page, err := strconv.Atoi(strings.TrimSpace(values.Get("page")))
	if err != nil || page < 1 {
		page = 1
	}
	site := strings.TrimSpace(values.Get("site"))
	if site == "" {
		site = AllSites
	}
	return State{Page: page, Site: site}
}

// Encode produces the query string for s, omitting defaults
func (s State) Encode() string {
	values := url.Values{}
	if s.Page > 1 {
		values.Set("page", strconv.Itoa(s.Page))
	}
	if s.Site != "" && s.Site != AllSites {
		values.Set("site", s.Site)
	}
	return values.Encode()
}

// WithSite changes the filter and goes back to the first page
func (s State) WithSite(site string) State {
	return State{Page: 1, Site: site}
}

// ScopeSites narrows the assigned sites by a filter. "all" keeps every assigned site;
// a specific id keeps only that site when it is assigned, otherwise nothing.
// The result is never nil so callers can tell "no sites" from "no filter".
func ScopeSites(assigned []string, filter string) []string {
	if filter == "" || filter == AllSites {
		out := make([]string, len(assigned))
		copy(out, assigned)
		return out
	}
	for _, id := range assigned {
		if id == filter {
			return []string{id}
		}
	}
	return []string{}
}
