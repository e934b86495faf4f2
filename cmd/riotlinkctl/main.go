// Command riotlinkctl is an operator tool for a riotlink deployment. It talks
// to the admin health endpoint or directly to the store, bypassing Discord.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/daladal/discord-bot/internal/config"
	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// linkView is the JSON shape printed by the lookup command.
type linkView struct {
	DiscordID string `json:"discord_id"`
	RiotID    string `json:"riot_id"`
	Region    string `json:"region"`
	PUUID     string `json:"puuid,omitempty"`
	Verified  bool   `json:"verified"`
}

func viewOf(rec model.LinkRecord) linkView {
	v := linkView{
		DiscordID: rec.OwnerID,
		RiotID:    rec.RiotID(),
		Region:    rec.Region.Display(),
	}
	if rec.VerifiedID != nil {
		v.PUUID = *rec.VerifiedID
		v.Verified = true
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	b, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// checkHealth asks the admin server at addr for the status of service.
func checkHealth(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer cc.Close()

	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

const usageText = `riotlinkctl %s

Usage:
  riotlinkctl [global flags] <command> [args]

Commands:
  version                 print build information
  health [-service name]  query the admin gRPC health endpoint
  migrate                 apply schema migrations to the configured store
  lookup <discord_id>     print the stored link of a Discord user
  prefix <guild_id>       print the stored command prefix of a guild

Global flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("riotlinkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "path to a TOML config file")
	driver := fs.String("driver", "", "storage driver: postgres or sqlite")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (overrides "+config.EnvDatabaseDSN+")")
	addr := fs.String("addr", "localhost:8081", "admin gRPC address")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	fs.Usage = func() {
		fmt.Fprintf(stderr, usageText, version)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}
	cmd := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Fprintf(stdout, "riotlinkctl %s (%s)\n", version, buildDate)
		return 0

	case "health":
		hfs := flag.NewFlagSet("health", flag.ContinueOnError)
		hfs.SetOutput(stderr)
		svc := hfs.String("service", "", "service name, empty for the whole process")
		if err := hfs.Parse(fs.Args()[1:]); err != nil {
			return 2
		}

		st, err := checkHealth(ctx, *addr, *svc)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, st.String())
		if st != healthpb.HealthCheckResponse_SERVING {
			return 1
		}
		return 0

	case "migrate", "lookup", "prefix":
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return fail(stderr, err)
		}
		if *driver != "" {
			cfg.Storage.Driver = *driver
		}
		if *dsn != "" {
			cfg.Storage.DSN = *dsn
		}

		log, _ := zap.NewDevelopment()
		defer func() { _ = log.Sync() }()

		st, err := storage.Open(ctx, cfg.Storage, log)
		if err != nil {
			return fail(stderr, err)
		}
		defer st.Close()

		if err := runStoreCommand(ctx, cmd, fs.Args()[1:], st, stdout); err != nil {
			return fail(stderr, err)
		}
		return 0

	default:
		fs.Usage()
		return 2
	}
}

// runStoreCommand executes a command that only needs the store. Opening the
// store already applies migrations, so migrate has nothing left to do.
func runStoreCommand(ctx context.Context, cmd string, args []string, st *storage.Stores, w io.Writer) error {
	switch cmd {
	case "migrate":
		_, err := fmt.Fprintln(w, "migrations applied")
		return err

	case "lookup":
		if len(args) != 1 {
			return errors.New("usage: lookup <discord_id>")
		}
		rec, err := st.Links.GetLink(ctx, args[0])
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("no link for %s", args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(w, viewOf(*rec))

	case "prefix":
		if len(args) != 1 {
			return errors.New("usage: prefix <guild_id>")
		}
		c, err := st.Configs.GetConfig(ctx, args[0])
		if errors.Is(err, errs.ErrNotFound) {
			_, err = fmt.Fprintf(w, "%s (default)\n", model.DefaultPrefix)
			return err
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, c.Prefix)
		return err
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func fail(w io.Writer, err error) int {
	fmt.Fprintln(w, "error:", err)
	return 1
}
