package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/internal/db"
	"github.com/janicogyle/ccs-membership-sub001/internal/roster"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <roster.xlsx>")
	}

	filePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	fmt.Printf("Reading roster: %s\n", filePath)
	report, err := roster.ReadFile(filePath, cfg.Auth.MinPasswordLength)
	if err != nil {
		log.Fatal("Failed to read roster:", err)
	}

	for _, s := range report.Skipped {
		fmt.Printf("  row %d skipped: %s\n", s.Row, s.Reason)
	}
	fmt.Printf("Valid rows: %d, skipped: %d\n", len(report.Entries), len(report.Skipped))

	if len(report.Entries) == 0 {
		fmt.Println("Nothing to import.")
		return
	}

	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	repo := repository.NewAccountRepository(db.GetDB(), cfg.Database.QueryTimeout)
	hasher := util.NewPasswordHasher(cfg.Auth.BcryptCost)

	batchSize := 500
	inserted, err := roster.Import(context.Background(), repo, hasher, report.Entries, batchSize)
	if err != nil {
		log.Fatal("Failed to import roster:", err)
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Accounts created: %d, already present: %d\n", inserted, int64(len(report.Entries))-inserted)
}
