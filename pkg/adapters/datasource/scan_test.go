package datasource

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRowsPreservesColumnOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"zebra", "apple", "mango"}).
			AddRow(1, "a", nil).
			AddRow(2, "b", 3.5),
	)

	rows, err := db.Query("SELECT zebra, apple, mango FROM t")
	require.NoError(t, err)
	defer rows.Close()

	result, err := ScanRows(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"zebra", "apple", "mango"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "a", result.Rows[0]["apple"])
	assert.Nil(t, result.Rows[0]["mango"])
	assert.Equal(t, 3.5, result.Rows[1]["mango"])
}

func TestScanRowsEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}))

	rows, err := db.Query("SELECT n FROM t WHERE 1 = 0")
	require.NoError(t, err)
	defer rows.Close()

	result, err := ScanRows(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"n"}, result.Columns)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
}
