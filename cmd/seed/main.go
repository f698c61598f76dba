// Command seed creates the first secretary account so an administrator can
// log in to a fresh database. It does nothing when a secretary already exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"correspondence/internal/credential"
	identityservice "correspondence/internal/identity/service"
	"correspondence/internal/identity/store/user"
	"correspondence/internal/platform/config"
	"correspondence/internal/platform/logger"
	"correspondence/internal/platform/postgres"
	"correspondence/pkg/domain"
	"correspondence/pkg/requestcontext"
)

func main() {
	fullName := flag.String("name", "Sekretaris", "full name of the first secretary")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := seed(ctx, cfg, *fullName); err != nil {
		log.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg config.Server, fullName string) error {
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	users := user.NewPostgres(db)
	existing, err := users.FindByRole(ctx, domain.RoleSecretary, domain.DivisionNone)
	if err != nil {
		return fmt.Errorf("look up secretary: %w", err)
	}
	if len(existing) > 0 {
		fmt.Printf("secretary already exists: %s\n", existing[0].Username)
		return nil
	}

	svc := identityservice.New(users, credential.NewBcryptHasher(cfg.Auth.BcryptCost),
		identityservice.WithTxRunner(postgres.NewTxRunner(db, cfg.TxTimeout)),
	)
	res, err := svc.CreateUser(requestcontext.WithTime(ctx, time.Now()), fullName, domain.RoleSecretary, domain.DivisionNone)
	if err != nil {
		return err
	}
	fmt.Printf("created secretary %q\nusername: %s\ninitial password: %s\n", res.User.FullName, res.User.Username, res.InitialPassword)
	return nil
}
