package grants

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrStoreUnavailable wraps transient infrastructure failures reaching the
	// grant store. Always propagated, never swallowed; retries belong to the
	// caller.
	ErrStoreUnavailable = errors.New("grants: store unavailable")

	// ErrIntegrityViolation indicates a uniqueness constraint fired despite
	// insert-if-absent semantics. It is fatal to the operation.
	ErrIntegrityViolation = errors.New("grants: integrity violation")

	// ErrInvalidReference marks malformed principal or resource references
	// rejected at the API boundary. A caller error, not an infrastructure one.
	ErrInvalidReference = errors.New("grants: invalid reference")
)

// classifyStoreError folds driver-level failures into the engine taxonomy.
// Record-not-found is not an error condition for the store and is handled
// before classification.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrIntegrityViolation, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
