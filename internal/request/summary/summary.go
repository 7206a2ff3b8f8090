// Package summary renders the one-page PDF summary attached to every request.
package summary

import (
	"bytes"
	"fmt"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/entity"
	"github.com/go-pdf/fpdf"
)

const (
	Title      = "Communications Request Summary"
	SystemName = "Communications Request System"

	margin     = 12.7 // 0.5in
	lineHeight = 4.6
	cellPad    = 1.2
	bodySize   = 9
)

// Fields is everything the summary shows. Lists are rendered comma-joined;
// empty values render as empty cells.
type Fields struct {
	TicketID          string
	SubmitDate        string
	Name              string
	Email             string
	ProjectGrant      string
	RequestType       string
	SupportTypes      []string
	PrimaryPurposes   []string
	TargetAudiences   []string
	AudienceAction    string
	KeyPoints         string
	SubjectMatter     string
	RequestedDueDate  string
	PriorityLevel     string
	DriverDeadline    string
	GrantDeliverable  string
	ShareExternally   string
	SensitiveContent  []string
	PermissionSecured string
	EstimatedLength   string
	DesignSupport     string
	LiveLocations     []string
}

// FromRequest copies the summary fields out of r.
func FromRequest(r entity.Request) Fields {
	return Fields{
		TicketID:          r.TicketID,
		SubmitDate:        entity.FormatDate(r.SubmitDate),
		Name:              r.Name,
		Email:             r.Email,
		ProjectGrant:      r.ProjectGrant,
		RequestType:       r.RequestType,
		SupportTypes:      r.SupportTypes,
		PrimaryPurposes:   r.PrimaryPurposes,
		TargetAudiences:   r.TargetAudiences,
		AudienceAction:    r.AudienceAction,
		KeyPoints:         r.KeyPoints,
		SubjectMatter:     r.SubjectMatter,
		RequestedDueDate:  entity.FormatDate(r.RequestedDueDate),
		PriorityLevel:     r.PriorityLevel,
		DriverDeadline:    r.DriverDeadline,
		GrantDeliverable:  r.GrantDeliverable,
		ShareExternally:   r.ShareExternally,
		SensitiveContent:  r.SensitiveContent,
		PermissionSecured: r.PermissionSecured,
		EstimatedLength:   r.EstimatedLength,
		DesignSupport:     r.DesignSupport,
		LiveLocations:     r.LiveLocations,
	}
}

// Render draws the summary. Equal inputs give byte-identical output: the
// document dates are pinned to generatedAt and the catalog is sorted.
func Render(f Fields, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(generatedAt)
	pdf.SetModificationDate(generatedAt)
	pdf.SetTitle(Title+" "+f.TicketID, true)
	pdf.SetCreator(SystemName, true)
	pdf.AddPage()

	d := &doc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	d.width, _ = pdf.GetPageSize()
	d.width -= 2 * margin

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, d.tr(Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	d.grid([]float64{1.7, 2.3, 1.7, 2.3}, true, [][]string{
		{"Ticket ID", f.TicketID, "Submit Date", f.SubmitDate},
		{"Requestor Name", f.Name, "Email Address", f.Email},
		{"Project/Grant", f.ProjectGrant, "Request Type", f.RequestType},
	})

	d.section("Request Details")
	d.grid([]float64{2.2, 6.0}, false, [][]string{
		{"Type of Support Needed", entity.JoinList(f.SupportTypes)},
		{"Primary Purpose", entity.JoinList(f.PrimaryPurposes)},
		{"Target Audience", entity.JoinList(f.TargetAudiences)},
		{"Audience Action", f.AudienceAction},
		{"Key Points to Include", f.KeyPoints},
		{"Subject Matter Expectations", f.SubjectMatter},
	})

	d.section("Timeline & Priority")
	d.grid([]float64{1.9, 2.1, 1.9, 2.1}, false, [][]string{
		{"Requested Due Date", f.RequestedDueDate, "Priority Level", f.PriorityLevel},
		{"Driver of Deadline", f.DriverDeadline, "Tied to Grant Deliverable", f.GrantDeliverable},
	})

	d.section("Publishing & Compliance")
	d.grid([]float64{2.8, 5.4}, false, [][]string{
		{"Will this be shared externally?", f.ShareExternally},
		{"Includes any sensitive information", entity.JoinList(f.SensitiveContent)},
		{"Permissions for photos/quotes secured", f.PermissionSecured},
	})

	d.section("Scope & Format")
	d.grid([]float64{2.8, 5.4}, false, [][]string{
		{"Estimated Length/Size", f.EstimatedLength},
		{"Level of Design Support Needed", f.DesignSupport},
		{"Where it will live", entity.JoinList(f.LiveLocations)},
	})

	pdf.Ln(5)
	pdf.SetFont("Helvetica", "", bodySize)
	footer := fmt.Sprintf("Generated on %s | %s", generatedAt.Format("2006-01-02 15:04"), SystemName)
	pdf.CellFormat(0, lineHeight, d.tr(footer), "", 1, "L", false, 0, "")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	return buf.Bytes(), nil
}

type doc struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	width float64
}

func (d *doc) section(title string) {
	d.pdf.Ln(3)
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.CellFormat(0, 7, d.tr(title), "", 1, "L", false, 0, "")
	d.pdf.Ln(1)
}

// grid draws bordered rows. weights are relative column widths; each row is
// as tall as its tallest wrapped cell. shadeFirst fills the first row.
func (d *doc) grid(weights []float64, shadeFirst bool, rows [][]string) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	widths := make([]float64, len(weights))
	for i, w := range weights {
		widths[i] = d.width * w / total
	}

	pdf := d.pdf
	pdf.SetFont("Helvetica", "", bodySize)
	pdf.SetDrawColor(128, 128, 128)
	pdf.SetFillColor(241, 241, 241)
	_, pageH := pdf.GetPageSize()

	for ri, row := range rows {
		lines := make([][][]byte, len(row))
		height := lineHeight
		for i, cell := range row {
			lines[i] = pdf.SplitLines([]byte(d.tr(cell)), widths[i]-2*cellPad)
			if h := float64(len(lines[i])) * lineHeight; h > height {
				height = h
			}
		}
		height += 2 * cellPad

		if pdf.GetY()+height > pageH-margin {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		style := "D"
		if shadeFirst && ri == 0 {
			style = "FD"
		}
		for i := range row {
			pdf.Rect(x, y, widths[i], height, style)
			for li, line := range lines[i] {
				pdf.SetXY(x+cellPad, y+cellPad+float64(li)*lineHeight)
				pdf.CellFormat(widths[i]-2*cellPad, lineHeight, string(line), "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(margin, y+height)
	}
}
