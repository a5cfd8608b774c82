// Command seed creates or removes the demo accounts.
//
//	go run ./cmd/seed                 # admin, manager and user accounts
//	go run ./cmd/seed --cleanup       # remove them and their tasks
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tasktracker/internal/app"
	"tasktracker/internal/config"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/service"

	"github.com/spf13/pflag"
)

type account struct {
	name  string
	email string
	role  dom.Role
}

var demoAccounts = []account{
	{"Admin User", "admin@example.com", dom.RoleAdmin},
	{"Manager User", "manager@example.com", dom.RoleManager},
	{"Regular User", "user@example.com", dom.RoleUser},
}

func main() {
	cleanup := pflag.Bool("cleanup", false, "remove the demo accounts and their tasks instead of creating them")
	password := pflag.String("password", "password123", "password for newly created accounts")
	pflag.Parse()

	cfg, err := config.LoadStorage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.PG.Driver == config.StorageMemory {
		fmt.Fprintln(os.Stderr, "seed needs STORAGE_DRIVER=postgres, the memory store lives inside the API process")
		os.Exit(1)
	}
	log := app.NewLogger(cfg.App, os.Stderr)
	if *cleanup && !cfg.HasRedis() {
		log.Warn("REDIS_ADDR not set, a running API keeps cached task lists until REDIS_DEFAULT_TTL")
	}

	a, err := app.NewStorageOnly(cfg, log)
	if err != nil {
		log.Error("open storage", "err", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *cleanup {
		err = removeAccounts(ctx, a.Users)
	} else {
		err = seedAccounts(ctx, a.Users, *password)
	}
	if err != nil {
		log.Error("seed failed", "err", err)
		cancel()
		a.Close(context.Background())
		os.Exit(1)
	}
}

func seedAccounts(ctx context.Context, users *service.UserService, password string) error {
	for _, acc := range demoAccounts {
		u, created, err := users.EnsureAccount(ctx, acc.name, acc.email, password, acc.role)
		if err != nil {
			return err
		}
		verb := "updated"
		if created {
			verb = "created"
		}
		fmt.Printf("%s %-7s %s (%s)\n", verb, u.Role, u.Email, u.ID)
	}
	fmt.Printf("\nlogin with any of the emails above, password %q for new accounts\n", password)
	return nil
}

func removeAccounts(ctx context.Context, users *service.UserService) error {
	emails := make([]string, len(demoAccounts))
	for i, acc := range demoAccounts {
		emails[i] = acc.email
	}
	nUsers, nTasks, err := users.RemoveAccounts(ctx, emails)
	if err != nil {
		return err
	}
	if nUsers == 0 {
		fmt.Println("no demo accounts to delete")
		return nil
	}
	fmt.Printf("deleted %d accounts and %d tasks\n", nUsers, nTasks)
	return nil
}
