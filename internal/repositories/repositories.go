// package repositories provides persistence layer implementations for client state and cached movies.
package repositories

import (
	"database/sql"
	"fmt"
)

// expectRows returns an error when result affected no rows.
func expectRows(result sql.Result, what string, key any) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found: %v", what, key)
	}
	return nil
}
