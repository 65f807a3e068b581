// Command migrate runs schema operations for the directory database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"memberdir/internal/config"
	"memberdir/internal/database"

	"gorm.io/gorm"
)

const usage = "usage: migrate <up|auto|status|down VERSION>"

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	if err := run(context.Background(), db, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, db *gorm.DB, args []string) error {
	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "up":
		if err := database.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Println("directory schema is up to date")
	case "auto":
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
		log.Println("directory models automigrated")
	case "status":
		report, err := collectStatus(ctx, db)
		if err != nil {
			return err
		}
		return report.write(os.Stdout)
	case "down":
		if len(args) < 2 {
			return fmt.Errorf("%s", usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("roll back %d: %w", version, err)
		}
		log.Printf("rolled back migration %d", version)
	default:
		return fmt.Errorf("%s", usage)
	}
	return nil
}
