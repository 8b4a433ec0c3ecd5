// pdf.go
//
// A compliance report review and analysis-agent gateway service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of reportdesk.
// reportdesk is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// reportdesk is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with reportdesk.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/localnerve/reportdesk/internal/normalize"
)

// ViewMode selects how a section's output is rendered
type ViewMode string

const (
	ViewJSON  ViewMode = "json"
	ViewPlain ViewMode = "plain"
	ViewSplit ViewMode = "split"
)

// Label is the badge text for a view mode
func (m ViewMode) Label() string {
	switch m {
	case ViewPlain:
		return "Plain Text"
	case ViewSplit:
		return "Split"
	}
	return "JSON"
}

// ParseViewMode accepts json, plain, plain_texts or split; anything else is json
func ParseViewMode(s string) ViewMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "plain_text", "plain_texts":
		return ViewPlain
	case "split":
		return ViewSplit
	}
	return ViewJSON
}

// Options control a PDF export
type Options struct {
	// FileName is the uploaded document name, used for the output name
	FileName string
	// Mode is the default view for every section
	Mode ViewMode
	// Modes overrides the view per section key
	Modes map[string]ViewMode
	// Now stamps the export; zero means time.Now
	Now time.Time
}

func (o Options) modeFor(key string) ViewMode {
	if m, ok := o.Modes[key]; ok && m != "" {
		return m
	}
	if o.Mode == "" {
		return ViewJSON
	}
	return o.Mode
}

func (o Options) stamp() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// BaseName is the uploaded filename without its extension, or "report"
func BaseName(fileName string) string {
	base := strings.TrimSpace(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
	if base == "" {
		return "report"
	}
	return base
}

// AgentFileName is the download name of an agent responses export
func AgentFileName(fileName string) string {
	return BaseName(fileName) + "-agent-responses.pdf"
}

// DomainFileName is the download name of a domain responses export
func DomainFileName(fileName string) string {
	return BaseName(fileName) + "-domain-responses.pdf"
}

const (
	margin     = 48.0
	lineHeight = 16.0
	badgeH     = 18.0
	badgePadX  = 8.0
	badgeGap   = 8.0
)

type badgeColor int

const (
	gray badgeColor = iota
	green
	red
)

func (c badgeColor) rgb() (int, int, int) {
	switch c {
	case green:
		return 222, 247, 236
	case red:
		return 255, 228, 230
	}
	return 229, 231, 235
}

type badge struct {
	label string
	color badgeColor
}

type tocEntry struct {
	label string
	page  int
	link  int
}

// document wraps fpdf with the layout helpers shared by both exports
type document struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	pageW float64
	pageH float64
}

func newDocument() *document {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetCreator("reportdesk", true)

	w, h := pdf.GetPageSize()
	return &document{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		pageW: w,
		pageH: h,
	}
}

func (d *document) text(s string) string {
	return d.tr(normalize.SanitizeText(s))
}

// wrapped writes text across as many lines and pages as it needs
func (d *document) wrapped(s string, y, size, gap float64, family string) float64 {
	d.pdf.SetFont(family, "", size)
	d.pdf.SetTextColor(0, 0, 0)
	for _, line := range d.pdf.SplitLines([]byte(d.text(s)), d.pageW-margin*2) {
		if y > d.pageH-margin {
			d.pdf.AddPage()
			y = margin
		}
		d.pdf.Text(margin, y, string(line))
		y += lineHeight
	}
	return y + gap
}

func (d *document) divider(y float64) float64 {
	d.pdf.SetDrawColor(210, 210, 210)
	d.pdf.Line(margin, y, d.pageW-margin, y)
	return y + 12
}

func (d *document) badges(items []badge, y float64) float64 {
	d.pdf.SetFont("Helvetica", "B", 10)
	x := margin
	for _, b := range items {
		label := d.text(b.label)
		w := d.pdf.GetStringWidth(label) + badgePadX*2
		if x+w > d.pageW-margin {
			y += badgeH + 4
			x = margin
		}
		d.pdf.SetFillColor(b.color.rgb())
		d.pdf.RoundedRect(x, y, w, badgeH, 4, "1234", "F")
		d.pdf.SetTextColor(0, 0, 0)
		d.pdf.Text(x+badgePadX, y+badgeH/2+3, label)
		x += w + badgeGap
	}
	return y + 26
}

func (d *document) heading(s string, y, size float64) float64 {
	d.pdf.SetFont("Helvetica", "B", size)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.Text(margin, y, d.text(s))
	return y
}

// cover writes the title block on the first page
func (d *document) cover(title, note string, stamp time.Time, items []badge) {
	d.pdf.AddPage()
	y := margin + 6
	d.heading(title, y, 22)
	y += 28
	y = d.wrapped("Exported: "+stamp.Format("1/2/2006, 3:04:05 PM"), y, 11, 6, "Helvetica")
	y = d.wrapped(note, y, 11, 10, "Helvetica")
	d.badges(items, y)
}

// toc reserves a contents page and returns its number
func (d *document) toc() int {
	d.pdf.AddPage()
	d.heading("Table of Contents", margin+6, 16)
	return d.pdf.PageNo()
}

// section opens a new page for key and records where it starts
func (d *document) section(key string) (tocEntry, float64) {
	link := d.pdf.AddLink()
	d.pdf.AddPage()
	d.pdf.SetLink(link, 0, -1)

	y := margin + 6
	d.heading(key, y, 16)
	return tocEntry{page: d.pdf.PageNo(), link: link}, y + 18
}

// body renders one section's output in the chosen view
func (d *document) body(mode ViewMode, jsonNode, plain interface{}, y float64) {
	jsonStr := normalize.JSONText(jsonNode)
	switch mode {
	case ViewSplit:
		y = d.wrapped("JSON:\n"+jsonStr, y, 9, 8, "Courier")
		y = d.divider(y)
		d.wrapped("Plain Text:\n"+normalize.PlainText(plain, "No plain text available"), y, 11, 8, "Helvetica")
	case ViewPlain:
		d.wrapped(normalize.PlainText(plain, "-"), y, 11, 8, "Helvetica")
	default:
		d.wrapped(jsonStr, y, 9, 8, "Courier")
	}
}

// writeTOC goes back to the contents page and lists every section with its page
func (d *document) writeTOC(page int, entries []tocEntry) {
	d.pdf.SetPage(page)
	y := margin + 6 + 18
	right := d.pageW - margin

	d.pdf.SetFont("Helvetica", "", 11)
	for _, e := range entries {
		if y > d.pageH-margin {
			// contents beyond one page are truncated
			break
		}
		label := d.text(e.label)
		num := fmt.Sprint(e.page)
		labelW := d.pdf.GetStringWidth(label)
		numW := d.pdf.GetStringWidth(num)

		d.pdf.SetTextColor(0, 0, 0)
		d.pdf.Text(margin, y, label)
		dotsStart, dotsEnd := margin+labelW+6, right-numW-6
		if dotsEnd > dotsStart {
			d.pdf.SetDrawColor(180, 180, 180)
			d.pdf.SetDashPattern([]float64{2, 2}, 0)
			d.pdf.Line(dotsStart, y-4, dotsEnd, y-4)
			d.pdf.SetDashPattern([]float64{}, 0)
		}
		d.pdf.Text(right-numW, y, num)
		d.pdf.Link(margin, y-11, right-margin, lineHeight, e.link)
		y += lineHeight
	}
}

// finish stamps "i / N" on every page and renders the document
func (d *document) finish() ([]byte, error) {
	total := d.pdf.PageCount()
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.SetTextColor(0, 0, 0)
	for i := 1; i <= total; i++ {
		d.pdf.SetPage(i)
		label := fmt.Sprintf("%d / %d", i, total)
		d.pdf.Text(d.pageW-margin-d.pdf.GetStringWidth(label), d.pageH-20, label)
	}

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// AgentResponsesPDF renders a cover with pass/fail badges, a table of contents and one
// section per agent key.
func AgentResponsesPDF(env normalize.Envelope, keys []string, opts Options) ([]byte, error) {
	d := newDocument()
	sum := normalize.Summarize(env, keys)

	failed := green
	if sum.Failed > 0 {
		failed = red
	}
	d.cover("Agent Responses", "Includes all agent outputs using each card's current selection.", opts.stamp(), []badge{
		{label: fmt.Sprintf("Agents: %d", len(keys)), color: gray},
		{label: fmt.Sprintf("Passed: %d", sum.Passed), color: green},
		{label: fmt.Sprintf("Failed: %d", sum.Failed), color: failed},
	})

	tocPage := d.toc()
	entries := make([]tocEntry, 0, len(keys))
	for i, key := range keys {
		mode := opts.modeFor(key)
		entry, y := d.section(key)
		entry.label = fmt.Sprintf("%d. %s - %s", i+1, key, mode.Label())
		entries = append(entries, entry)

		status, color := "Status: -", gray
		if passed := normalize.AgentPassed(env, key); passed != nil {
			status, color = "Status: Failed", red
			if *passed {
				status, color = "Status: Passed", green
			}
		}
		y = d.badges([]badge{{label: status, color: color}, {label: "View: " + mode.Label(), color: gray}}, y)
		y = d.divider(y)
		d.body(mode, normalize.AgentOutput(env, key), env.PlainTexts[key], y)
	}

	d.writeTOC(tocPage, entries)
	return d.finish()
}

// DomainResponsesPDF renders one section per domain that has content to show
func DomainResponsesPDF(env normalize.Envelope, domains []string, opts Options) ([]byte, error) {
	d := newDocument()

	shown := make([]string, 0, len(domains))
	for _, key := range domains {
		if normalize.HasDomainContent(env, key) {
			shown = append(shown, key)
		}
	}

	d.cover("Domain-wise Responses", "Shows only domains found in domain_wise_jsons.", opts.stamp(), []badge{
		{label: fmt.Sprintf("Domains: %d", len(shown)), color: gray},
	})

	tocPage := d.toc()
	entries := make([]tocEntry, 0, len(shown))
	for i, key := range shown {
		mode := opts.modeFor(key)
		entry, y := d.section(key)
		entry.label = fmt.Sprintf("%d. %s - %s", i+1, key, mode.Label())
		entries = append(entries, entry)

		y = d.badges([]badge{{label: "View: " + mode.Label(), color: gray}}, y)
		y = d.divider(y)
		d.body(mode, env.DomainWiseJsons[key], env.DomainWiseTexts[key], y)
	}

	d.writeTOC(tocPage, entries)
	return d.finish()
}
