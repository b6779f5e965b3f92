package render

import (
	"github.com/joescharf/codereview/internal/models"
)

const (
	chartLabelWidth = 45.0
	chartValueWidth = 22.0
	chartBarHeight  = 4.0
	chartRowHeight  = 11.0
)

// complexity renders the per-file table followed by a horizontal bar chart
// of the complexity ranks.
func (r *Renderer) complexity(d *doc, estimates []models.ComplexityEstimate) {
	r.heading(d, "Complexity Analysis")
	if len(estimates) == 0 {
		d.SetFont(fontFamily, "I", 10)
		d.MultiCell(0, lineHeight, "No files analyzed", "", "L", false)
		d.Ln(4)
		return
	}

	d.SetFont(fontFamily, "B", 10)
	d.SetFillColor(235, 235, 235)
	d.CellFormat(90, 7, "File", "1", 0, "L", true, 0, "")
	d.CellFormat(45, 7, "Time", "1", 0, "C", true, 0, "")
	d.CellFormat(45, 7, "Space", "1", 1, "C", true, 0, "")
	d.SetFont(fontFamily, "", 10)
	for _, e := range estimates {
		d.CellFormat(90, 7, d.text(truncate(e.File, 48)), "1", 0, "L", false, 0, "")
		d.CellFormat(45, 7, string(e.Time), "1", 0, "C", false, 0, "")
		d.CellFormat(45, 7, string(e.Space), "1", 1, "C", false, 0, "")
	}
	d.Ln(5)

	pageW, pageH := d.GetPageSize()
	left, _, right, bottom := d.GetMargins()
	need := float64(len(estimates))*chartRowHeight + 12
	if d.GetY()+need > pageH-bottom {
		d.AddPage()
	}

	d.SetFont(fontFamily, "B", 10)
	d.CellFormat(0, 6, "Complexity chart (longer bar = steeper growth)", "", 1, "L", false, 0, "")
	r.legend(d)

	area := pageW - left - right - chartLabelWidth - chartValueWidth
	for _, e := range estimates {
		y := d.GetY()
		d.SetFont(fontFamily, "", 9)
		d.SetXY(left, y)
		d.CellFormat(chartLabelWidth, chartBarHeight*2, d.text(truncate(e.File, 26)), "", 0, "L", false, 0, "")

		x := left + chartLabelWidth
		r.bar(d, x, y, area, e.Time, 52, 101, 164)
		r.bar(d, x, y+chartBarHeight+0.5, area, e.Space, 78, 154, 6)
		d.SetXY(left, y+chartRowHeight)
	}
	d.SetDrawColor(0, 0, 0)
	d.Ln(3)
}

func (r *Renderer) bar(d *doc, x, y, area float64, c models.ComplexityClass, red, green, blue int) {
	w := area * float64(c.Rank()) / float64(models.MaxComplexityRank)
	if w > 0 {
		d.SetFillColor(red, green, blue)
		d.Rect(x, y, w, chartBarHeight, "F")
	} else {
		d.SetDrawColor(160, 160, 160)
		d.Rect(x, y, 1, chartBarHeight, "D")
	}
	d.SetFont(fontFamily, "", 8)
	d.SetXY(x+w+2, y)
	d.CellFormat(chartValueWidth, chartBarHeight, string(c), "", 0, "L", false, 0, "")
}

func (r *Renderer) legend(d *doc) {
	x, y := d.GetXY()
	d.SetFont(fontFamily, "", 8)
	d.SetFillColor(52, 101, 164)
	d.Rect(x, y+1, 4, 3, "F")
	d.SetXY(x+5, y)
	d.CellFormat(20, 5, "Time", "", 0, "L", false, 0, "")
	d.SetFillColor(78, 154, 6)
	d.Rect(x+26, y+1, 4, 3, "F")
	d.SetXY(x+31, y)
	d.CellFormat(20, 5, "Space", "", 1, "L", false, 0, "")
	d.Ln(2)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
