package db

import (
	"errors"

	"github.com/lib/pq"
)

const (
	postgresCheckViolationErrorCode = "23514"
)

func isErrorCheckViolation(err error) bool {
	var psqlErr *pq.Error
	return errors.As(err, &psqlErr) && psqlErr.Code == postgresCheckViolationErrorCode
}
