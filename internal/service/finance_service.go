package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clinicq/internal/domain"
	"clinicq/internal/metrics"
	"clinicq/internal/models"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
)

type FinanceOptions struct {
	ConsultationFee         int64
	CreditExpiryWorkingDays int
	Location                *time.Location
	ExportPath              string
}

type FinanceService struct {
	ledger   domain.LedgerRepository
	history  domain.BookingHistory
	opts     FinanceOptions
	logger   *zerolog.Logger
	now      func() time.Time
	countFee func(kind string)
}

func NewFinanceService(ledger domain.LedgerRepository, history domain.BookingHistory, opts FinanceOptions, logger *zerolog.Logger) *FinanceService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ConsultationFee <= 0 {
		opts.ConsultationFee = models.DefaultConsultationFee
	}
	if opts.CreditExpiryWorkingDays <= 0 {
		opts.CreditExpiryWorkingDays = models.DefaultCreditExpiryWorkingDays
	}
	if opts.ExportPath == "" {
		opts.ExportPath = "exports"
	}
	return &FinanceService{
		ledger:   ledger,
		history:  history,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		countFee: metrics.IncFee,
	}
}

// AddWorkingDays moves forward n weekdays, skipping Saturday and Sunday.
func AddWorkingDays(from time.Time, n int) time.Time {
	t := from
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return t
}

func (s *FinanceService) creditExpiry() time.Time {
	return AddWorkingDays(s.now().In(s.opts.Location), s.opts.CreditExpiryWorkingDays)
}

func (s *FinanceService) Ledger(ctx context.Context, patientID int64) (*models.Ledger, error) {
	return s.ledger.GetLedger(ctx, patientID)
}

// AdjustCredit adds amount (negative to deduct) to the patient's credit. A
// positive top-up restarts the expiry window.
func (s *FinanceService) AdjustCredit(ctx context.Context, patientID, amount int64) (*models.Ledger, error) {
	if amount == 0 {
		return nil, &ValidationError{Fields: map[string]string{"amount": "amount must not be zero"}}
	}
	var expiry *time.Time
	if amount > 0 {
		e := s.creditExpiry()
		expiry = &e
	}

	ledger, err := s.ledger.AdjustCredit(ctx, patientID, amount, expiry)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", patientID).Int64("amount", amount).Int64("credit", ledger.CreditBalance).Msg("credit adjusted")
	return ledger, nil
}

// ApplyFee books a queued fee task against the ledger. Applying the same task
// twice is a no-op and is counted in the fee metric only once.
func (s *FinanceService) ApplyFee(ctx context.Context, task *models.FeeTask) (*models.Ledger, error) {
	charge := &models.Charge{
		TaskID:    task.ID,
		PatientID: task.PatientID,
		Kind:      task.Kind,
		Amount:    task.Amount,
		Reason:    task.Reason,
	}

	var expiry *time.Time
	switch task.Kind {
	case models.ChargeLateFee:
	case models.ChargeLateArrival:
		e := s.creditExpiry()
		expiry = &e
	default:
		return nil, fmt.Errorf("unknown fee kind %q", task.Kind)
	}

	ledger, applied, err := s.ledger.ApplyCharge(ctx, charge, expiry)
	if err != nil {
		return nil, err
	}
	if applied {
		s.countFee(task.Kind)
	}
	return ledger, nil
}

func (s *FinanceService) dayBounds(date string) (time.Time, time.Time, string, error) {
	if date == "" {
		date = s.now().In(s.opts.Location).Format(models.DateLayout)
	}
	start, err := time.ParseInLocation(models.DateLayout, date, s.opts.Location)
	if err != nil {
		return time.Time{}, time.Time{}, "", &ValidationError{Fields: map[string]string{"date": "date must be YYYY-MM-DD"}}
	}
	return start, start.AddDate(0, 0, 1), date, nil
}

// Balance summarizes one day of income. An empty date means today.
func (s *FinanceService) Balance(ctx context.Context, date string) (*models.Balance, error) {
	start, end, date, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}

	patients, err := s.history.CountBookingsOn(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	charges, err := s.ledger.ChargesBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load charges: %w", err)
	}
	sumKind := func(kind string) int64 {
		return lo.SumBy(lo.Filter(charges, func(c *models.Charge, _ int) bool { return c.Kind == kind }),
			func(c *models.Charge) int64 { return c.Amount })
	}

	pending, err := s.ledger.ListPendingCredits(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("load pending credits: %w", err)
	}

	b := &models.Balance{
		Date:               date,
		TotalPatients:      patients,
		LateFees:           sumKind(models.ChargeLateFee),
		MissedAppointments: sumKind(models.ChargeLateArrival),
		PendingCredits:     lo.Map(pending, func(p *models.PendingCredit, _ int) models.PendingCredit { return *p }),
		PendingTotal:       lo.SumBy(pending, func(p *models.PendingCredit) int64 { return p.Amount }),
	}
	b.CollectedToday = int64(patients)*s.opts.ConsultationFee + b.LateFees
	b.TotalRevenue = b.CollectedToday + b.MissedAppointments
	return b, nil
}

// ExportBalance writes the day's balance report to an XLSX file and returns its path.
func (s *FinanceService) ExportBalance(ctx context.Context, date string) (string, error) {
	b, err := s.Balance(ctx, date)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.opts.ExportPath, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const summary = "Balance"
	index, err := f.NewSheet(summary)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	rows := [][]any{
		{"Date", b.Date},
		{"Total patients", b.TotalPatients},
		{"Collected today", b.CollectedToday},
		{"Late fees", b.LateFees},
		{"Missed appointments", b.MissedAppointments},
		{"Pending credits", b.PendingTotal},
		{"Total revenue", b.TotalRevenue},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			return "", fmt.Errorf("write summary row: %w", err)
		}
	}

	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(summary, "A1", fmt.Sprintf("A%d", len(rows)), bold)
	_ = f.SetColWidth(summary, "A", "A", 24)

	if err := s.writePendingSheet(f, b.PendingCredits); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	path := filepath.Join(s.opts.ExportPath, fmt.Sprintf("balance_%s.xlsx", b.Date))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}

	s.logger.Info().Str("file_path", path).Msg("balance report exported")
	return path, nil
}

func (s *FinanceService) writePendingSheet(f *excelize.File, pending []models.PendingCredit) error {
	const sheet = "Pending credits"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header := []any{"Patient ID", "Patient", "Amount", "Days remaining", "Expires"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(sheet, "A1", "E1", style)

	for i, p := range pending {
		row := []any{p.PatientID, p.PatientName, p.Amount, p.DaysRemaining, p.ExpiresAt.In(s.opts.Location).Format(models.DateLayout)}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
