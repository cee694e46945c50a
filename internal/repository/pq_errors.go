package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード。
const (
	pqCodeInvalidTextRepresentation = "22P02"
	pqCodeForeignKeyViolation       = "23503"
)

// isInvalidTextRepresentation はUUID列に不正な文字列が渡された場合にtrueを返す。
// 存在しないIDと同様に扱うために使用する。
func isInvalidTextRepresentation(err error) bool {
	return pqErrorCode(err) == pqCodeInvalidTextRepresentation
}

// IsForeignKeyViolation はerrが外部キー制約違反の場合にtrueを返す。
func IsForeignKeyViolation(err error) bool {
	return pqErrorCode(err) == pqCodeForeignKeyViolation
}

func pqErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
