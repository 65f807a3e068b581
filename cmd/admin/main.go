// Command admin provides operator utilities for the member directory.
package main

import (
	"fmt"
	"os"

	"memberdir/internal/cache"
	"memberdir/internal/config"
	"memberdir/internal/database"
	"memberdir/internal/notifications"
	"memberdir/internal/repository"
)

func main() {
	root := newRootCmd(func() (*app, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		// Without Redis, running servers pick the change up on their next reload.
		cache.InitRedis(cfg.RedisURL)
		return &app{
			profiles: repository.NewProfileRepository(db),
			notifier: notifications.NewNotifier(cache.GetClient()),
		}, nil
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
