package report

import (
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/dstkit/internal/common"
)

// SaveScanPDF renders the scan report into a printable PDF document.
func SaveScanPDF(rep ScanReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Capture Scan Report", false)
	pdf.SetAuthor("dstctl", false)
	pdf.SetCreator("dstctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Capture Scan Report")
	addSummarySection(pdf, rep)
	addBankCensusSection(pdf, rep.BankCounts)
	addIntegritySection(pdf, rep)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep ScanReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: rep.File},
		{label: "Size", value: common.FormatBytes(rep.SizeBytes)},
		{label: "Blocks", value: strconv.FormatInt(rep.Blocks, 10)},
		{label: "Banks", value: strconv.FormatInt(rep.Banks, 10)},
		{label: "Events", value: strconv.FormatInt(rep.Events, 10)},
		{label: "Status", value: statusLabel(rep.Error)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addBankCensusSection(pdf *gofpdf.Fpdf, rows []BankCount) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Bank Census")
	pdf.Ln(9)

	if len(rows) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No banks reassembled.", "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{"Bank ID", "Name", "Count"}
	widths := []float64{35, 110, 35}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, row := range rows {
		values := []string{
			strconv.FormatUint(uint64(row.ID), 10),
			row.Name,
			strconv.FormatInt(row.Count, 10),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addIntegritySection(pdf *gofpdf.Fpdf, rep ScanReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Integrity")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, "SHA-256: "+emptyFallback(rep.Sha256, "-"), "", "L", false)
	if rep.Error != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, "Scan aborted: "+rep.Error, "", "L", false)
	}

	if png, err := CaptureHashToQR(rep.Sha256, 160); err == nil {
		addHashQR(pdf, png)
	}
}

func addHashQR(pdf *gofpdf.Fpdf, png []byte) {
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("capture-hash-qr", opts, strings.NewReader(string(png)))
	pdf.Ln(4)
	pdf.ImageOptions("capture-hash-qr", pdf.GetX(), pdf.GetY(), 30, 30, false, opts, 0, "")
	pdf.Ln(32)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func statusLabel(errMsg string) string {
	if errMsg == "" {
		return "OK"
	}
	return "FAILED"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
