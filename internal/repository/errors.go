// Package repository stores ledger, event and booking state in MySQL.
// Every method runs on the transaction carried by the context when there
// is one, so the services can group several calls into a single commit.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/membership-ledger/internal/model"
)

// MySQL server error numbers we translate.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrNo(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlErrNo(err) == errDupEntry }

// translate maps lock contention to model.ErrConflict so callers can
// retry; other errors pass through.
func translate(err error) error {
	switch mysqlErrNo(err) {
	case errDeadlock, errLockWaitTimeout:
		return errors.Join(model.ErrConflict, err)
	}
	return err
}
