// Package report renders analysis outputs: regression tables,
// descriptive statistics, geographic summaries, and the results
// summary artifact the dashboard reads.
package report

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"buurtstat/domain/model"
	apperrors "buurtstat/internal/errors"

	"github.com/xuri/excelize/v2"
)

// modelHeaders are the display names for the two-level sequence.
var modelHeaders = map[string]string{
	"m0_empty":          "Empty",
	"m1_key_pred":       "+ Key Pred",
	"m2_ind_controls":   "+ Ind Controls",
	"m3_buurt_controls": "+ Buurt Controls",
	"m4_wijk_controls":  "+ Wijk Controls",
}

// paramNames maps design labels to readable table rows.
var paramNames = map[string]string{
	"b_perc_low40_hh":   "% Low income HH (buurt)",
	"w_perc_low40_hh":   "% Low income HH (wijk)",
	"g_perc_low40_hh":   "% Low income HH (gemeente)",
	"b_pop_dens":        "Population density",
	"b_pop_over_65":     "% Over 65",
	"b_pop_nonwest":     "% Non-Western",
	"b_perc_low_inc_hh": "% Low income HH",
	"b_perc_soc_min_hh": "% Social minimum",
	"w_pop_dens":        "Population density (wijk)",
	"w_pop_over_65":     "% Over 65 (wijk)",
	"w_pop_nonwest":     "% Non-Western (wijk)",
	"w_perc_low_inc_hh": "% Low income HH (wijk)",
	"w_perc_soc_min_hh": "% Social minimum (wijk)",
	"age":               "Age (std)",
	"education":         "Education (std)",
	"born_in_nl":        "Born in Netherlands",
}

// paramOrder fixes the display order; labels not listed keep their
// first-seen order after these.
var paramOrder = []string{
	"b_perc_low40_hh", "w_perc_low40_hh", "g_perc_low40_hh",
	"age", "education", "born_in_nl",
	"b_pop_dens", "b_pop_over_65", "b_pop_nonwest",
	"b_perc_low_inc_hh", "b_perc_soc_min_hh",
	"w_pop_dens", "w_pop_over_65", "w_pop_nonwest",
	"w_perc_low_inc_hh", "w_perc_soc_min_hh",
}

// Table is a rendered regression table: a header row plus body rows.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// BuildModelTable lays out a fitted sequence side by side: intercept,
// ordered fixed effects with significance stars, then fit statistics.
func BuildModelTable(title string, seq *model.Sequence) *Table {
	fitted := seq.Fitted()
	t := &Table{Title: title, Headers: []string{"Variable"}}
	for _, m := range fitted {
		header := m.Name
		if h, ok := modelHeaders[m.Name]; ok {
			header = h
		}
		t.Headers = append(t.Headers, header)
	}

	labels := orderedLabels(fitted)

	intercept := []string{"Intercept"}
	for _, m := range fitted {
		if c, ok := m.Coefficient("Intercept"); ok {
			intercept = append(intercept, fmt.Sprintf("%.2f (%.2f)", c.Estimate, c.SE))
		} else {
			intercept = append(intercept, "")
		}
	}
	t.Rows = append(t.Rows, intercept)

	for _, label := range labels {
		row := []string{displayName(label)}
		for _, m := range fitted {
			if c, ok := m.Coefficient(label); ok {
				row = append(row, fmt.Sprintf("%.3f%s (%.3f)", c.Estimate, c.Stars(), c.SE))
			} else {
				row = append(row, "")
			}
		}
		t.Rows = append(t.Rows, row)
	}

	t.Rows = append(t.Rows, statRow("N", fitted, func(m *model.Fitted) string {
		return fmt.Sprintf("%d", m.NObs)
	}))
	t.Rows = append(t.Rows, statRow("Groups", fitted, func(m *model.Fitted) string {
		return fmt.Sprintf("%d", m.NClusters)
	}))
	t.Rows = append(t.Rows, statRow("AIC", fitted, func(m *model.Fitted) string {
		return fmt.Sprintf("%.1f", m.AIC)
	}))
	t.Rows = append(t.Rows, statRow("BIC", fitted, func(m *model.Fitted) string {
		return fmt.Sprintf("%.1f", m.BIC)
	}))
	return t
}

func statRow(name string, fitted []*model.Fitted, f func(*model.Fitted) string) []string {
	row := []string{name}
	for _, m := range fitted {
		row = append(row, f(m))
	}
	return row
}

// orderedLabels collects non-intercept labels across models: the
// preferred order first, then remaining labels by first appearance.
func orderedLabels(fitted []*model.Fitted) []string {
	seen := make(map[string]bool)
	var all []string
	for _, m := range fitted {
		for _, c := range m.Coefficients {
			if c.Label == "Intercept" || seen[c.Label] {
				continue
			}
			seen[c.Label] = true
			all = append(all, c.Label)
		}
	}

	inPreferred := make(map[string]bool)
	var out []string
	for _, label := range paramOrder {
		if seen[label] {
			out = append(out, label)
			inPreferred[label] = true
		}
	}
	for _, label := range all {
		if !inPreferred[label] {
			out = append(out, label)
		}
	}
	return out
}

func displayName(label string) string {
	if name, ok := paramNames[label]; ok {
		return name
	}
	// Categorical dummies arrive as variable[level].
	if i := strings.IndexByte(label, '['); i > 0 && strings.HasSuffix(label, "]") {
		return label[:i] + ": " + label[i+1:len(label)-1]
	}
	return label
}

// Text renders the table as aligned plain text.
func (t *Table) Text() string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(fmt.Sprintf("%-*s", widths[i], cell))
		}
		b.WriteByte('\n')
	}
	writeRow(t.Headers)
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w))
		b.WriteString("  ")
	}
	b.WriteByte('\n')
	for _, row := range t.Rows {
		writeRow(row)
	}
	return b.String()
}

// HTML renders the table as a standalone styled page.
func (t *Table) HTML() string {
	var b strings.Builder
	b.WriteString(`<html>
<head>
<style>
table { border-collapse: collapse; font-family: Arial, sans-serif; }
th, td { padding: 8px 12px; text-align: right; border-bottom: 1px solid #ddd; }
th { background-color: #f5f5f5; font-weight: bold; }
td:first-child, th:first-child { text-align: left; }
tr:hover { background-color: #f9f9f9; }
</style>
</head>
<body>
`)
	fmt.Fprintf(&b, "<h2>%s</h2>\n", t.Title)
	b.WriteString("<p><em>DV: Redistribution Preferences (0-100 scale)</em></p>\n<table>\n<tr>")
	for _, h := range t.Headers {
		fmt.Fprintf(&b, "<th>%s</th>", h)
	}
	b.WriteString("</tr>\n")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", cell)
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n")
	b.WriteString("<p><small>* p&lt;0.05, ** p&lt;0.01, *** p&lt;0.001. Standard errors in parentheses.</small></p>\n")
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// SaveHTML writes the HTML rendering, creating parent directories.
func (t *Table) SaveHTML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ReportError("failed to create tables directory", err)
	}
	if err := os.WriteFile(path, []byte(t.HTML()), 0o644); err != nil {
		return apperrors.ReportError("failed to write HTML table", err)
	}
	log.Printf("[Report] Saved table to %s", path)
	return nil
}

// SaveXLSX writes the table as a spreadsheet for downstream editing.
func (t *Table) SaveXLSX(path, sheet string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.ReportError("failed to create tables directory", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	} else {
		f.SetSheetName("Sheet1", sheet)
	}

	if err := f.SetSheetRow(sheet, "A1", &t.Headers); err != nil {
		return apperrors.ReportError("failed to write sheet header", err)
	}
	for i, row := range t.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return apperrors.ReportError("failed to write sheet row", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.ReportError("failed to save spreadsheet", err)
	}
	log.Printf("[Report] Saved table to %s", path)
	return nil
}
