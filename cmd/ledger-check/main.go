// ledger-check verifies that no stock balance is negative and that every item's quantity
// equals the sum of its balances. With --repair, drifted item totals are rewritten.
// Exit status is 0 when clean, 3 when problems were found.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	repair := flag.Bool("repair", false, "Rewrite item totals that disagree with their balances")
	lockTimeout := flag.Int("lock-timeout", 30, "Seconds to wait for the maintenance lock")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	ctx := context.Background()
	store := models.NewGormStore(db)

	var report *workflow.LedgerCheckReport
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := workflow.AcquireLedgerMaintenanceLock(conn, *lockTimeout); err != nil {
			return err
		}
		defer workflow.ReleaseLedgerMaintenanceLock(conn)

		var err error
		report, err = workflow.CheckLedger(ctx, store, *repair, logger)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger check failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Clean() {
		os.Exit(3)
	}
}
