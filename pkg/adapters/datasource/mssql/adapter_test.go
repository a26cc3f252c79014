package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnsRows(t *testing.T) {
	assert.True(t, returnsRows("SELECT * FROM users"))
	assert.True(t, returnsRows("  with cte as (select 1) select * from cte"))
	assert.True(t, returnsRows("DELETE FROM users OUTPUT deleted.id WHERE id = 1"))

	assert.False(t, returnsRows("UPDATE users SET name = 'x'"))
	assert.False(t, returnsRows("DELETE FROM users WHERE id = 1"))
	assert.False(t, returnsRows("INSERT INTO users (name) VALUES ('x')"))
}
