package inventory

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var ErrNotFound = sqlx.ErrNotFound
var ErrRowsAffectedIsZero = errors.New("affected rows is zero")
var ErrInvalidParam = errors.New("invalid param for sql")
var ErrDuplicateKey = errors.New("duplicate key")

const mysqlDuplicateEntry = 1062

// translateInsertErr maps a unique key violation to ErrDuplicateKey.
func translateInsertErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrDuplicateKey
	}
	return err
}
