// writeupadmin is an operator CLI for the writeup storage layer.
//
// Usage:
//
//	writeupadmin [flags] ping
//	writeupadmin [flags] add-user <username> <password>
//	writeupadmin [flags] remove-user <username>
//	writeupadmin [flags] list-notes <username>
//
// Flags and the DB_* environment variables select and authenticate
// the MongoDB backend; --no-db swaps in the in-memory backend, which
// is only useful for exercising commands end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/writeup-app/writeup/internal/config"
	"github.com/writeup-app/writeup/internal/logutil"
	"github.com/writeup-app/writeup/internal/storage"
	"github.com/writeup-app/writeup/internal/storage/memory"
	"github.com/writeup-app/writeup/internal/storage/mongodb"
)

const connectTimeout = 10 * time.Second

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	noDB, addr := config.ParseFlags()
	cfg, err := config.Load(noDB, addr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: writeupadmin [flags] <ping|add-user|remove-user|list-notes> [args]")
		os.Exit(2)
	}

	log.Debug().
		Str("db_addr", cfg.DBAddr).
		Str("db_name", cfg.DBName).
		Str("db_user", cfg.DBUser).
		Str("db_password", logutil.RedactValue("db_password", cfg.DBPassword)).
		Bool("no_db", cfg.NoDB).
		Msg("configuration loaded")

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := openPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer func() {
		if err := pool.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to close storage")
		}
	}()

	if err := run(ctx, pool.Manager(), args, log); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("command failed")
	}
}

func openPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.ManagerPool, error) {
	if cfg.NoDB {
		log.Info().Msg("using in-memory backend, nothing will persist")
		return memory.Open(memory.Config{}), nil
	}
	return mongodb.Open(ctx, mongodb.Config{
		Addr:     cfg.DBAddr,
		Username: cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		Logger:   log,
	})
}

func run(ctx context.Context, manager storage.DBManager, args []string, log zerolog.Logger) error {
	command, rest := args[0], args[1:]
	switch command {
	case "ping":
		meta := manager.Meta()
		log.Info().Str("driver", meta.DriverID).Str("schema_version", meta.Version).Msg("storage reachable")
		return nil

	case "add-user":
		if len(rest) != 2 {
			return fmt.Errorf("add-user expects <username> <password>")
		}
		user, err := manager.Register(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		meta := user.Meta()
		log.Info().Str("user", meta.ID).Time("member_since", meta.MemberSince).Msg("user created")
		return nil

	case "remove-user":
		if len(rest) != 1 {
			return fmt.Errorf("remove-user expects <username>")
		}
		if err := manager.RemoveUser(ctx, rest[0]); err != nil {
			return err
		}
		log.Info().Str("user", rest[0]).Msg("user removed")
		return nil

	case "list-notes":
		if len(rest) != 1 {
			return fmt.Errorf("list-notes expects <username>")
		}
		user, err := manager.User(ctx, rest[0])
		if err != nil {
			return err
		}
		noteIDs, err := user.Notes(ctx)
		if err != nil {
			return err
		}
		for _, noteID := range noteIDs {
			note, err := user.Note(ctx, noteID)
			if err != nil {
				return err
			}
			meta := note.Meta()
			fmt.Printf("%s\t%s\t%s\t%q\n", noteID, meta.Permission, meta.OwnerID,
				logutil.TruncateForLog(note.Title(), 80))
		}
		log.Info().Str("user", rest[0]).Int("notes", len(noteIDs)).Msg("listed notes")
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
