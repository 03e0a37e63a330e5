package service

import (
	"context"
	"os"
	"testing"
	"time"

	"clinicq/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAddWorkingDays(t *testing.T) {
	friday := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		from time.Time
		n    int
		want string
	}{
		{friday, 1, "2024-03-04"},
		{friday, 7, "2024-03-12"},
		{friday.AddDate(0, 0, 1), 1, "2024-03-04"},
		{friday.AddDate(0, 0, 3), 0, "2024-03-04"},
	}
	for _, tt := range tests {
		got := AddWorkingDays(tt.from, tt.n)
		assert.Equal(t, tt.want, got.Format(models.DateLayout), "from %s +%d", tt.from.Format(models.DateLayout), tt.n)
	}
}

func newFinance(t *testing.T) (*FinanceService, context.Context) {
	t.Helper()
	db := setupDB(t)
	svc := NewFinanceService(db, db, FinanceOptions{
		ConsultationFee:         500,
		CreditExpiryWorkingDays: 7,
		Location:                time.UTC,
		ExportPath:              t.TempDir(),
	}, nopLogger())
	return svc, context.Background()
}

func TestAdjustCreditSetsExpiry(t *testing.T) {
	svc, ctx := newFinance(t)
	friday := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return friday }

	ledger, err := svc.AdjustCredit(ctx, 7, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), ledger.CreditBalance)
	assert.Equal(t, int64(models.DefaultConsultationFee), ledger.TotalFee)
	require.NotNil(t, ledger.CreditExpiry)
	assert.Equal(t, "2024-03-12", ledger.CreditExpiry.UTC().Format(models.DateLayout))

	ledger, err = svc.AdjustCredit(ctx, 7, -500)
	require.NoError(t, err)
	assert.Zero(t, ledger.CreditBalance)

	_, err = svc.AdjustCredit(ctx, 7, 0)
	assert.True(t, IsValidation(err))
}

func TestApplyFee(t *testing.T) {
	svc, ctx := newFinance(t)

	_, err := svc.AdjustCredit(ctx, 3, 150)
	require.NoError(t, err)

	late := &models.FeeTask{ID: 1, Kind: models.ChargeLateFee, PatientID: 3, Amount: 25, Reason: "grace expired"}
	ledger, err := svc.ApplyFee(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, int64(525), ledger.TotalFee)

	// replaying the same task changes nothing
	ledger, err = svc.ApplyFee(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, int64(525), ledger.TotalFee)

	arrival := &models.FeeTask{ID: 2, Kind: models.ChargeLateArrival, PatientID: 3, Amount: 100}
	ledger, err = svc.ApplyFee(ctx, arrival)
	require.NoError(t, err)
	assert.Equal(t, int64(50), ledger.CreditBalance)

	ledger, err = svc.ApplyFee(ctx, &models.FeeTask{ID: 3, Kind: models.ChargeLateArrival, PatientID: 3, Amount: 100})
	require.NoError(t, err)
	assert.Zero(t, ledger.CreditBalance)

	_, err = svc.ApplyFee(ctx, &models.FeeTask{ID: 4, Kind: "tip", PatientID: 3, Amount: 1})
	assert.Error(t, err)
}

func TestApplyFeeCountsOnlyNewCharges(t *testing.T) {
	svc, ctx := newFinance(t)
	counted := map[string]int{}
	svc.countFee = func(kind string) { counted[kind]++ }

	late := &models.FeeTask{ID: 21, Kind: models.ChargeLateFee, PatientID: 9, Amount: 25}
	for range 3 {
		_, err := svc.ApplyFee(ctx, late)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, counted[models.ChargeLateFee])

	_, err := svc.ApplyFee(ctx, &models.FeeTask{ID: 22, Kind: models.ChargeLateFee, PatientID: 9, Amount: 25})
	require.NoError(t, err)
	assert.Equal(t, 2, counted[models.ChargeLateFee])

	_, err = svc.ApplyFee(ctx, &models.FeeTask{ID: 23, Kind: "tip", PatientID: 9, Amount: 1})
	require.Error(t, err)
	assert.Len(t, counted, 1)
}

func TestBalanceAndExport(t *testing.T) {
	svc, ctx := newFinance(t)
	today := time.Now().UTC().Format(models.DateLayout)

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, svc.history.AppendBooking(ctx, &models.BookingRecord{
			PatientID: id, Tier: models.TierFree, Date: today, TokenNumber: 40 + int(id), ConfirmedAt: time.Now(),
		}))
	}
	_, err := svc.AdjustCredit(ctx, 2, 300)
	require.NoError(t, err)
	_, err = svc.ApplyFee(ctx, &models.FeeTask{ID: 10, Kind: models.ChargeLateFee, PatientID: 1, Amount: 25})
	require.NoError(t, err)
	_, err = svc.ApplyFee(ctx, &models.FeeTask{ID: 11, Kind: models.ChargeLateArrival, PatientID: 2, Amount: 100})
	require.NoError(t, err)

	b, err := svc.Balance(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, today, b.Date)
	assert.Equal(t, 3, b.TotalPatients)
	assert.Equal(t, int64(25), b.LateFees)
	assert.Equal(t, int64(100), b.MissedAppointments)
	assert.Equal(t, int64(3*500+25), b.CollectedToday)
	assert.Equal(t, int64(3*500+25+100), b.TotalRevenue)
	require.Len(t, b.PendingCredits, 1)
	assert.Equal(t, int64(200), b.PendingTotal)

	path, err := svc.ExportBalance(ctx, today)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	revenue, err := f.GetCellValue("Balance", "B7")
	require.NoError(t, err)
	assert.Equal(t, "1625", revenue)
	patientID, err := f.GetCellValue("Pending credits", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2", patientID)

	_, err = svc.Balance(ctx, "yesterday")
	assert.True(t, IsValidation(err))
}
