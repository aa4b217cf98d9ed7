package benefits

import (
	"context"

	"github.com/shopspring/decimal"
)

type Statistics struct {
	Month                 string          `json:"month"`
	TotalMealVoucher      decimal.Decimal `json:"totalValeRefeicao"`
	TotalTransportVoucher decimal.Decimal `json:"totalValeTransporte"`
	TotalMobility         decimal.Decimal `json:"totalMobility"`
	GrandTotal            decimal.Decimal `json:"grandTotal"`
	EmployeeCount         int             `json:"employeeCount"`
	RecordCount           int             `json:"recordCount"`
	CountByStatus         map[Status]int  `json:"countByStatus"`
}

// Aggregate sums the stored amounts of the month's non-cancelled records.
// Nothing is recomputed.
func Aggregate(month string, records []Record) Statistics {
	stats := Statistics{
		Month:                 month,
		TotalMealVoucher:      decimal.Zero,
		TotalTransportVoucher: decimal.Zero,
		TotalMobility:         decimal.Zero,
		GrandTotal:            decimal.Zero,
		CountByStatus:         make(map[Status]int, len(ActiveStatuses)),
	}
	for _, s := range ActiveStatuses {
		stats.CountByStatus[s] = 0
	}

	employees := map[string]struct{}{}
	for _, r := range records {
		if r.Month != month || r.PaymentStatus == StatusCancelled {
			continue
		}
		if r.MealVoucher.Enabled {
			stats.TotalMealVoucher = stats.TotalMealVoucher.Add(r.MealVoucher.FinalAmount)
		}
		if r.TransportVoucher.Enabled {
			stats.TotalTransportVoucher = stats.TotalTransportVoucher.Add(r.TransportVoucher.FinalAmount)
		}
		if r.Mobility.Enabled {
			stats.TotalMobility = stats.TotalMobility.Add(r.Mobility.MonthlyValue)
		}
		stats.CountByStatus[r.PaymentStatus]++
		stats.RecordCount++
		employees[r.EmployeeID] = struct{}{}
	}
	stats.EmployeeCount = len(employees)
	stats.GrandTotal = stats.TotalMealVoucher.Add(stats.TotalTransportVoucher).Add(stats.TotalMobility)
	return stats
}

func (s *Service) Statistics(ctx context.Context, tenantID string, month, year int) (Statistics, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return Statistics{}, err
	}
	records, _, err := s.store.ListRecords(ctx, tenantID, RecordFilter{Month: period.String()})
	if err != nil {
		return Statistics{}, err
	}
	return Aggregate(period.String(), records), nil
}
