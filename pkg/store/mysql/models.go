package mysql

import (
	"fmt"

	"advisorhub/pkg/store/mysql/model"
)

// AutoMigrate creates or updates all task-subsystem tables.
//
// The claim query relies on SELECT ... FOR UPDATE SKIP LOCKED, so the
// storage engine must support transactional row locking with skip
// semantics (InnoDB 8.0+, PostgreSQL 9.5+).
func (ds *Datastore) AutoMigrate() error {
	if err := ds.db.AutoMigrate(
		&model.User{},
		&model.Task{},
		&model.MemoryRule{},
		&model.Email{},
		&model.CalendarEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}
