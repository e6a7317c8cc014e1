// seed-admin creates the admin user, or resets its password, email and role if it exists.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  ADMIN_PASSWORD=... go run ./cmd/seed-admin --username admin --email admin@example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/workflow"
)

func main() {
	username := flag.String("username", "admin", "Admin username")
	email := flag.String("email", "admin@warehouse.local", "Admin email")
	skipMigrate := flag.Bool("skip-migrate", false, "Do not run AutoMigrate first")
	flag.Parse()

	password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD"))
	if password == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_PASSWORD is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if !*skipMigrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	accounts := workflow.NewAccounts(models.NewGormStore(db), config.GetLogger())
	user, created, err := accounts.EnsureAdmin(context.Background(), &models.NewUser{
		Username: *username,
		Email:    *email,
		Password: password,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("created admin user %q (id=%d)\n", user.Username, user.ID)
	} else {
		fmt.Printf("updated admin user %q (id=%d)\n", user.Username, user.ID)
	}
}
