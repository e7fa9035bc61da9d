package repository

import (
	"gorm.io/gorm"
)

// VersionedRow is a row guarded by an optimistic version counter.
// Any table with an id and a version column can use CompareAndSwap.
type VersionedRow interface {
	TableName() string
	RowID() int64
	RowVersion() int64
}

// CompareAndSwap applies updates only if the row still carries the version that
// was read, and bumps the version by exactly one. It returns false when another
// writer changed the row first; the caller decides whether to retry.
func CompareAndSwap(tx *gorm.DB, row VersionedRow, updates map[string]interface{}) (bool, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for column, value := range updates {
		values[column] = value
	}
	values["version"] = gorm.Expr("version + 1")

	result := tx.Table(row.TableName()).
		Where("id = ? AND version = ?", row.RowID(), row.RowVersion()).
		UpdateColumns(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
