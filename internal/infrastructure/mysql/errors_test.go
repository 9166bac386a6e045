package mysql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"auction-core/internal/domain"
)

func TestTranslateErrDeadlockBecomesConflict(t *testing.T) {
	err := translateErr(&mysql.MySQLError{Number: erLockDeadlock, Message: "Deadlock found"})
	assert.True(t, domain.IsConflict(err))
}

func TestTranslateErrLockWaitTimeoutBecomesConflict(t *testing.T) {
	err := translateErr(&mysql.MySQLError{Number: erLockWaitTimeout, Message: "Lock wait timeout exceeded"})
	assert.True(t, domain.IsConflict(err))
}

func TestTranslateErrWrappedDriverError(t *testing.T) {
	wrapped := fmt.Errorf("commit: %w", &mysql.MySQLError{Number: erLockDeadlock})
	assert.True(t, domain.IsConflict(translateErr(wrapped)))
}

func TestTranslateErrPassesOthersThrough(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	assert.False(t, domain.IsConflict(translateErr(dup)))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, translateErr(plain))

	assert.NoError(t, translateErr(nil))
}
