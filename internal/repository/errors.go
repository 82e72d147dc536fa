package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateOrder      = errors.New("order number already exists")
)

const mysqlDuplicateEntry = 1062

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
