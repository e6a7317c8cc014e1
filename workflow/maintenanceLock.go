package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

const ledgerMaintenanceLock = "warehouse:ledger_maintenance"

// AcquireLedgerMaintenanceLock keeps two ledger repairs from running at once across instances.
// NOTE: GET_LOCK is connection-scoped, so pin the connection (db.Connection) for the whole repair.
func AcquireLedgerMaintenanceLock(conn *gorm.DB, timeoutSeconds int) error {
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, ?)", ledgerMaintenanceLock, timeoutSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire %s within %ds", ledgerMaintenanceLock, timeoutSeconds)
	}
	return nil
}

func ReleaseLedgerMaintenanceLock(conn *gorm.DB) {
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", ledgerMaintenanceLock).Scan(&_ok).Error
}
