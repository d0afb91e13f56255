// Command admin is the moderators' CLI: bans and the report queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"rando/backend/internal/config"
	"rando/backend/internal/moderation"
	"rando/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const usage = `Usage: admin <command> [args]

  ban <user_id> [hours]                      ban a user; no hours means permanent
  unban <user_id>
  reports [status] [limit]                   list reports, highest priority first
  review <report_id> <moderator> [notes]
  resolve <report_id> <moderator> <action> [notes]
  dismiss <report_id> <moderator> [notes]

Actions: warn, mute, ban_temporary, ban_permanent, escalate`

var errUsage = errors.New("bad usage")

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	// bans are mirrored into the redis cache the server reads
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}
	svc := moderation.NewService(storage.NewStorageService(db, rdb), nil, nil)

	if err := run(context.Background(), svc, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
		}
		log.Fatalf("admin %s: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, svc *moderation.Service, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "ban":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		var d time.Duration
		if len(args) == 2 {
			hours, err := strconv.Atoi(args[1])
			if err != nil || hours <= 0 {
				return fmt.Errorf("%w: hours must be a positive integer", errUsage)
			}
			d = time.Duration(hours) * time.Hour
		}
		if err := svc.Ban(ctx, args[0], d); err != nil {
			return err
		}
		if d == 0 {
			fmt.Fprintf(out, "User %s has been banned permanently.\n", args[0])
		} else {
			fmt.Fprintf(out, "User %s has been banned for %s.\n", args[0], d)
		}

	case "unban":
		if len(args) != 1 {
			return errUsage
		}
		if err := svc.Unban(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "User %s has been unbanned.\n", args[0])

	case "reports":
		status, limit := "", 0
		if len(args) > 0 {
			status = args[0]
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: limit must be an integer", errUsage)
			}
			limit = n
		}
		reports, err := svc.List(ctx, status, limit)
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Fprintf(out, "%s\tp%d\t%s\t%s\treported=%s\t%s\n",
				r.ID, r.Priority, r.Status, r.Category, r.ReportedUserID, r.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "%d report(s)\n", len(reports))

	case "review", "dismiss":
		if len(args) < 2 {
			return errUsage
		}
		notes := strings.Join(args[2:], " ")
		var err error
		if cmd == "review" {
			_, err = svc.MarkReviewed(ctx, args[0], args[1], notes)
		} else {
			_, err = svc.Dismiss(ctx, args[0], args[1], notes)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Report %s: %s.\n", args[0], cmd+"ed")

	case "resolve":
		if len(args) < 3 {
			return errUsage
		}
		r, err := svc.Resolve(ctx, args[0], args[1], args[2], strings.Join(args[3:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Report %s resolved with %s.\n", r.ID, args[2])

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}
