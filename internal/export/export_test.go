package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/localnerve/reportdesk/internal/models"
	"github.com/localnerve/reportdesk/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleEnvelope() normalize.Envelope {
	env := normalize.Empty()
	env.Jsons["summary"] = map[string]interface{}{"total_nodes": 2, "passed_count": 1, "failed_count": 1}
	env.Jsons["Document Checker"] = map[string]interface{}{"passed": true, "output": map[string]interface{}{"pages": 4}}
	env.Jsons["Sample Adequacy"] = map[string]interface{}{"passed": false, "output": "too few samples ✅"}
	env.PlainTexts["Document Checker"] = "\"All pages present"
	env.DomainWiseJsons["Water"] = map[string]interface{}{"ok": true}
	env.DomainWiseJsons["Air"] = map[string]interface{}{}
	env.DomainWiseTexts["Soil"] = "   "
	return env
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "lab-2026-agent-responses.pdf", AgentFileName("lab-2026.pdf"))
	assert.Equal(t, "archive.tar-domain-responses.pdf", DomainFileName("archive.tar.gz"))
	assert.Equal(t, "report-agent-responses.pdf", AgentFileName(""))
	assert.Equal(t, "report-domain-responses.pdf", DomainFileName(".pdf"))
}

func TestParseViewMode(t *testing.T) {
	assert.Equal(t, ViewPlain, ParseViewMode("plain_texts"))
	assert.Equal(t, ViewSplit, ParseViewMode(" Split "))
	assert.Equal(t, ViewJSON, ParseViewMode("weird"))
	assert.Equal(t, "Plain Text", ViewPlain.Label())

	opts := Options{Mode: ViewSplit, Modes: map[string]ViewMode{"A": ViewPlain}}
	assert.Equal(t, ViewPlain, opts.modeFor("A"))
	assert.Equal(t, ViewSplit, opts.modeFor("B"))
	assert.Equal(t, ViewJSON, Options{}.modeFor("B"))
}

func TestAgentResponsesPDF(t *testing.T) {
	env := sampleEnvelope()
	keys := normalize.AgentKeys(env, nil)

	for _, mode := range []ViewMode{ViewJSON, ViewPlain, ViewSplit} {
		out, err := AgentResponsesPDF(env, keys, Options{Mode: mode, Now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), mode)
	}
}

func TestAgentResponsesPDFLongOutputPaginates(t *testing.T) {
	env := normalize.Empty()
	lines := make([]interface{}, 200)
	for i := range lines {
		lines[i] = "line of agent output that keeps going"
	}
	env.Jsons["Verbose"] = map[string]interface{}{"output": lines}

	short, err := AgentResponsesPDF(normalize.Empty(), nil, Options{})
	require.NoError(t, err)
	long, err := AgentResponsesPDF(env, []string{"Verbose"}, Options{})
	require.NoError(t, err)
	assert.Greater(t, len(long), len(short))
}

func TestDomainResponsesPDF(t *testing.T) {
	env := sampleEnvelope()
	out, err := DomainResponsesPDF(env, normalize.DomainKeys(env, nil), Options{Mode: ViewSplit})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestReportsXLSX(t *testing.T) {
	site := "s1"
	reviewed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	reports := []models.Report{
		{
			ReportNumber:   "RPT-1",
			Filename:       "a.pdf",
			Status:         models.ReportRejected,
			SiteID:         &site,
			UploadedAt:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			ReviewedAt:     &reviewed,
			UploadedByUser: &models.User{Email: "u@example.com"},
			Domains: []models.Domain{
				{Status: models.DomainApproved},
				{Status: models.DomainRejected},
				{Status: models.DomainPending},
			},
		},
		{ReportNumber: "RPT-2", Filename: "b.pdf", Status: models.ReportQueued, UploadedBy: "user-2"},
	}
	sites := []models.Site{{ID: "s1", DisplayName: "North Plant"}}

	out, err := ReportsXLSX(reports, sites)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, reportHeaders, rows[0])
	assert.Equal(t, []string{"RPT-1", "a.pdf", "North Plant", "rejected", "3", "1", "1", "1",
		"u@example.com", "2026-02-01 00:00:00", "2026-02-03 04:05:06"}, rows[1])
	assert.Equal(t, "Unknown Site", rows[2][2])
	assert.Equal(t, "user-2", rows[2][8])

	assert.Equal(t, "reports-2026-02-03.xlsx", ReportsFileName(reviewed))
}
