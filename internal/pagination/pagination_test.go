package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeClamps(t *testing.T) {
	p := Compute(23, 10, 3)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 20, p.Offset)
	assert.Equal(t, 21, p.Start)
	assert.Equal(t, 23, p.End)

	assert.Equal(t, 1, Compute(23, 10, 0).Page)
	assert.Equal(t, 3, Compute(23, 10, 4).Page)
	assert.Equal(t, 1, Compute(23, 10, -7).Page)

	empty := Compute(0, 10, 5)
	assert.Equal(t, 1, empty.Page)
	assert.Zero(t, empty.TotalPages)
	assert.Zero(t, empty.Offset)
	assert.Zero(t, empty.Start)
	assert.Zero(t, empty.End)
}

func TestSlice(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i + 1
	}

	assert.Equal(t, []int{21, 22, 23}, Slice(items, Compute(23, 10, 3)))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Slice(items, Compute(23, 5, 1)))
	assert.Empty(t, Slice([]int{}, Compute(0, 5, 1)))
}

func TestQueryState(t *testing.T) {
	s := FromQuery(url.Values{"page": {"3"}, "site": {"s1"}})
	assert.Equal(t, State{Page: 3, Site: "s1"}, s)
	assert.Equal(t, "page=3&site=s1", s.Encode())

	s = FromQuery(url.Values{"page": {"abc"}})
	assert.Equal(t, State{Page: 1, Site: AllSites}, s)
	assert.Equal(t, "", s.Encode())

	assert.Equal(t, State{Page: 1, Site: "s2"}, State{Page: 4, Site: "s1"}.WithSite("s2"))
}

func TestScopeSites(t *testing.T) {
	assigned := []string{"s1", "s2"}
	assert.Equal(t, []string{"s1", "s2"}, ScopeSites(assigned, AllSites))
	assert.Equal(t, []string{"s1", "s2"}, ScopeSites(assigned, ""))
	assert.Equal(t, []string{"s2"}, ScopeSites(assigned, "s2"))

	none := ScopeSites(assigned, "s9")
	assert.NotNil(t, none)
	assert.Empty(t, none)

	assert.NotNil(t, ScopeSites(nil, AllSites))
}
