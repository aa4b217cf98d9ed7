package benefits

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

type StatementLine struct {
	RecordID          string          `json:"recordId"`
	EmployeeID        string          `json:"employeeId"`
	EmployeeName      string          `json:"employeeName"`
	Department        string          `json:"department"`
	MealVoucher       decimal.Decimal `json:"valeRefeicao"`
	TransportVoucher  decimal.Decimal `json:"valeTransporte"`
	Mobility          decimal.Decimal `json:"mobility"`
	Total             decimal.Decimal `json:"total"`
	PaymentStatus     Status          `json:"paymentStatus"`
	ProviderReference string          `json:"providerReference"`
}

// Statement is the monthly register of every non-cancelled record.
type Statement struct {
	Month       string          `json:"month"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Lines       []StatementLine `json:"lines"`
	Totals      Statistics      `json:"totals"`
}

func (s *Service) Statement(ctx context.Context, tenantID string, month, year int) (Statement, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return Statement{}, err
	}
	records, _, err := s.store.ListRecords(ctx, tenantID, RecordFilter{Month: period.String()})
	if err != nil {
		return Statement{}, err
	}
	stmt := Statement{
		Month:       period.String(),
		GeneratedAt: s.now(),
		Totals:      Aggregate(period.String(), records),
	}
	for _, rec := range records {
		if rec.PaymentStatus == StatusCancelled {
			continue
		}
		line := StatementLine{
			RecordID:          rec.ID,
			EmployeeID:        rec.EmployeeID,
			EmployeeName:      rec.EmployeeID,
			MealVoucher:       enabledAmount(rec.MealVoucher.Enabled, rec.MealVoucher.FinalAmount),
			TransportVoucher:  enabledAmount(rec.TransportVoucher.Enabled, rec.TransportVoucher.FinalAmount),
			Mobility:          mobilityAmount(&rec),
			Total:             rec.TotalBenefitAmount(),
			PaymentStatus:     rec.PaymentStatus,
			ProviderReference: rec.Disbursement.ProviderReference,
		}
		emp, err := s.store.Employee(ctx, tenantID, rec.EmployeeID)
		switch {
		case err == nil:
			line.EmployeeName = emp.FullName()
			line.Department = emp.Department
		case !errors.Is(err, ErrEmployeeNotFound):
			return Statement{}, err
		}
		stmt.Lines = append(stmt.Lines, line)
	}
	return stmt, nil
}

func enabledAmount(enabled bool, amount decimal.Decimal) decimal.Decimal {
	if !enabled {
		return decimal.Zero
	}
	return amount
}

var statementHeader = []string{"record_id", "employee_id", "employee_name", "department", "vale_refeicao", "vale_transporte", "mobility", "total", "payment_status", "provider_reference"}

func (st Statement) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(statementHeader); err != nil {
		return err
	}
	for _, line := range st.Lines {
		if err := writer.Write([]string{
			line.RecordID,
			line.EmployeeID,
			line.EmployeeName,
			line.Department,
			line.MealVoucher.StringFixed(2),
			line.TransportVoucher.StringFixed(2),
			line.Mobility.StringFixed(2),
			line.Total.StringFixed(2),
			string(line.PaymentStatus),
			line.ProviderReference,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (st Statement) WritePDF(w io.Writer) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Benefits statement %s", st.Month))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", st.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(10)

	widths := []float64{70, 45, 30, 30, 30, 30, 35}
	headers := []string{"Employee", "Department", "VR", "VT", "Mobility", "Total", "Status"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, line := range st.Lines {
		cells := []string{
			tr(line.EmployeeName),
			tr(line.Department),
			line.MealVoucher.StringFixed(2),
			line.TransportVoucher.StringFixed(2),
			line.Mobility.StringFixed(2),
			line.Total.StringFixed(2),
			string(line.PaymentStatus),
		}
		for i, c := range cells {
			align := "R"
			if i < 2 || i == len(cells)-1 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 10)
	totals := []string{
		"Total",
		fmt.Sprintf("%d employees", st.Totals.EmployeeCount),
		st.Totals.TotalMealVoucher.StringFixed(2),
		st.Totals.TotalTransportVoucher.StringFixed(2),
		st.Totals.TotalMobility.StringFixed(2),
		st.Totals.GrandTotal.StringFixed(2),
		"",
	}
	for i, c := range totals {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "R", true, 0, "")
	}
	pdf.Ln(-1)
	return pdf.Output(w)
}
