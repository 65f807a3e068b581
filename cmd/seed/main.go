// Command main seeds the skills taxonomy and, optionally, demo members.
package main

import (
	"context"
	"flag"
	"log"

	"memberdir/internal/config"
	"memberdir/internal/database"
	"memberdir/internal/repository"
	"memberdir/internal/seed"
)

func main() {
	members := flag.Int("members", 0, "Number of demo members to create")
	seedValue := flag.Int64("seed", 0, "Random seed for reproducible demo data")
	hiddenEvery := flag.Int("hidden-every", 10, "Hide every nth demo profile (0 hides none)")
	dryRun := flag.Bool("dry-run", false, "Generate demo members without writing them")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	n, err := seed.Skills(ctx, repository.NewSkillRepository(db))
	if err != nil {
		log.Fatalf("Skills taxonomy seeding failed: %v", err)
	}
	log.Printf("skills taxonomy ensured (%d entries)", n)

	if *members > 0 {
		f := seed.NewFactory(db, seed.Options{Seed: *seedValue, HiddenEvery: *hiddenEvery, DryRun: *dryRun})
		created, err := f.Members(ctx, *members)
		if err != nil {
			log.Fatalf("Demo member seeding failed after %d members: %v", created, err)
		}
		log.Printf("created %d demo members", created)
	}
}
