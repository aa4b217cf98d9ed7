package benefits

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrbenefits/internal/platform/db"
)

func newPGStore(t *testing.T) (*Store, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = db.Migrate(ctx, pool, "../../../migrations")
	require.NoError(t, err)

	var tenantID string
	err = pool.QueryRow(ctx, `INSERT INTO tenants (name) VALUES ($1) RETURNING id::text`, "benefits-"+uuid.NewString()).Scan(&tenantID)
	require.NoError(t, err)
	return NewStore(pool), tenantID
}

func insertEmployee(t *testing.T, store *Store, tenantID string) string {
	t.Helper()
	var id string
	err := store.DB.QueryRow(context.Background(), `
    INSERT INTO employees (tenant_id, first_name, last_name, email, department)
    VALUES ($1, 'Ana', 'Souza', $2, 'Ops')
    RETURNING id::text
  `, tenantID, uuid.NewString()+"@example.com").Scan(&id)
	require.NoError(t, err)
	require.NoError(t, store.UpdateConfiguration(context.Background(), tenantID, id, vrConfig("25")))
	return id
}

func TestPGStoreRecordLifecycle(t *testing.T) {
	store, tenantID := newPGStore(t)
	ctx := context.Background()
	employeeID := insertEmployee(t, store, tenantID)

	eligible, err := store.ListEligibleEmployees(ctx, tenantID, EmployeeFilter{Kind: KindVR})
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.True(t, eligible[0].Benefits.MealVoucher.Enabled)

	svc := NewService(store, &fakeProvider{reference: "PRV-1", statuses: map[string]ProviderStatus{}})
	rec, err := svc.Calculate(ctx, tenantID, "hr-1", employeeID, 3, 2025, CalculationInput{BusinessDays: intPtr(22), Saturdays: intPtr(0)})
	require.NoError(t, err)
	assertMoney(t, "550", rec.MealVoucher.FinalAmount)

	rec, err = svc.AddDeduction(ctx, tenantID, "hr-1", rec.ID, KindVR, deduction("50", 4))
	require.NoError(t, err)
	assertMoney(t, "500", rec.MealVoucher.FinalAmount)

	stored, err := store.RecordByEmployeeMonth(ctx, tenantID, employeeID, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, rec.Version, stored.Version)
	require.Len(t, stored.MealVoucher.Deductions, 1)

	_, err = store.UpdateRecord(ctx, stored, stored.Version-1)
	require.ErrorIs(t, err, ErrConcurrentModification)

	dup := stored
	dup.ID = uuid.NewString()
	_, err = store.CreateRecord(ctx, dup)
	require.ErrorIs(t, err, ErrRecordExists)
}
