package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type uniqueRow struct {
	ID  string `gorm:"primaryKey"`
	Key string `gorm:"uniqueIndex"`
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil))
	require.False(t, IsUniqueViolation(errors.New("connection reset")))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	require.True(t, IsUniqueViolation(errors.New("Error 1062: Duplicate entry 'x' for key 'k'")))
}

func TestIsUniqueViolationSQLite(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:unique_violation?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&uniqueRow{}))

	require.NoError(t, gdb.Create(&uniqueRow{ID: "1", Key: "a"}).Error)
	err = gdb.Create(&uniqueRow{ID: "2", Key: "a"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
}
