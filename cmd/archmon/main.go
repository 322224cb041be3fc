package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joebot/archmon/internal/bus"
	"github.com/joebot/archmon/internal/cli"
	"github.com/joebot/archmon/internal/config"
	"github.com/joebot/archmon/internal/discord"
	"github.com/joebot/archmon/internal/logging"
	"github.com/joebot/archmon/internal/monitor"
	"github.com/joebot/archmon/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "onboard":
		cli.RunOnboard()
	case "version", "--version", "-v":
		fmt.Println(cli.TitleStyle.Render(
			fmt.Sprintf("  %s archmon v%s", cli.Logo, cli.Version),
		))
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	dim := cli.DimStyle.Render
	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s archmon", cli.Logo)) + dim(" — Archipelago Discord Monitor"))
	fmt.Println()
	fmt.Println("  " + cli.BoldStyle.Render("Usage"))
	fmt.Println()
	fmt.Printf("    archmon %-10s %s\n", "run", dim("Start the bot"))
	fmt.Printf("    archmon %-10s %s\n", "status", dim("Show configuration"))
	fmt.Printf("    archmon %-10s %s\n", "onboard", dim("Initialize setup"))
	fmt.Printf("    archmon %-10s %s\n", "version", dim("Show version"))
	fmt.Println()
}

// --- run command ---

func cmdRun() {
	cfg := mustLoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(1)
	}

	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, &logging.Options{
		Level: logging.ParseLevel(cfg.Logging.Level),
		Color: true,
	})))

	fmt.Println()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("  %s archmon", cli.Logo)))
	fmt.Println()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(1)
	}
	fmt.Println("  " + cli.OkStyle.Render("✓") + " Database " + cli.DimStyle.Render(cfg.DatabasePath()))

	b := bus.New()
	reg := monitor.NewRegistry(st, b, nil)

	gw, err := discord.New(cfg.Discord, st, reg, b)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(1)
	}

	go b.Dispatch(ctx)

	if err := gw.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrStyle.Render("  Error: "+err.Error()))
		os.Exit(1)
	}
	fmt.Println("  " + cli.OkStyle.Render("✓") + " Discord")

	// Bring persisted monitors back up. Each connects on its own so one
	// unreachable server does not delay the rest.
	conns, err := st.Connections(ctx)
	if err != nil {
		slog.Error("loading persisted monitors failed", "err", err)
	}
	for _, c := range conns {
		go func(c store.Connection) {
			if _, err := reg.Make(ctx, c, gw.ResolveChannel); err != nil {
				slog.Error("restoring monitor failed", "key", c.Key(), "err", err)
			}
		}(c)
	}
	if len(conns) > 0 {
		fmt.Printf("  %s Restoring %d monitor(s)\n", cli.OkStyle.Render("✓"), len(conns))
	}

	fmt.Println()
	fmt.Println(cli.DimStyle.Render("  Press Ctrl+C to stop"))
	<-ctx.Done()

	fmt.Println("\n  Shutting down...")
	reg.Close()
	if err := gw.Stop(); err != nil {
		slog.Warn("discord shutdown error", "err", err)
	}
}

// --- status command ---

func cmdStatus() {
	cfg, _ := config.Load()
	cli.RunStatus(cfg)
}

// --- helpers ---

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	return cfg
}
