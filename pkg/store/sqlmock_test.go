package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// Driver-level failures must surface as wrapped errors the orchestrator can
// classify as transient, never as sentinel not-found errors.
func TestPostgresDriverErrorIsNotNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStoreFromDB(db)
	s.clock = func() time.Time { return time.Unix(0, 0) }

	driverErr := errors.New("connection refused")
	mock.ExpectQuery("SELECT order_number").WillReturnError(driverErr)

	_, err = s.GetOrder(context.Background(), "ORD-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, err, driverErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRebindPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStoreFromDB(db)

	rows := sqlmock.NewRows([]string{
		"email", "first_name", "last_name", "phone", "loyalty_tier", "account_status", "fraud_flag", "return_count_30d",
	}).AddRow("jane@example.com", "Jane", "Smith", nil, "Gold", "Active", true, 2)
	mock.ExpectQuery(`WHERE email = \$1`).WithArgs("jane@example.com").WillReturnRows(rows)

	c, err := s.GetCustomer(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.True(t, c.FraudFlag)
	assert.Equal(t, 2, c.ReturnCount30)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateRMARollsBackOnOrderUpdateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresStoreFromDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM orders`).WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Delivered"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM rmas`).WithArgs("RMA-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO rmas`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE orders SET status`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	rma := &contracts.RMA{RMANumber: "RMA-1", OrderNumber: "ORD-1", ItemIDs: []string{"ITM-1"}}
	err = s.CreateRMA(context.Background(), rma)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
