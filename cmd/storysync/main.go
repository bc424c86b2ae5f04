package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/storysync/internal/config"
	"github.com/hpungsan/storysync/internal/db"
	"github.com/hpungsan/storysync/internal/edge"
	"github.com/hpungsan/storysync/internal/logging"
	"github.com/hpungsan/storysync/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "mcp": true,
	"install": true, "activate": true, "partitions": true, "status": true,
	"list": true, "store": true, "delete": true, "sync": true, "pull": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _                                    
   ___| |_ ___  _ __ _   _ ___ _   _ _ __   ___ 
  / __| __/ _ \| '__| | | / __| | | | '_ \ / __|
  \__ \ || (_) | |  | |_| \__ \ |_| | | | | (__ 
  |___/\__\___/|_|   \__, |___/\__, |_| |_|\___|
                     |___/     |___/            

  Offline-first edge for the story app

  Usage: storysync <command> [options]
         storysync serve
         storysync --help

  MCP server mode requires piped input.`)
}

// baseDir returns $STORYSYNC_HOME, or ~/.storysync.
func baseDir() (string, error) {
	if dir := os.Getenv("STORYSYNC_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".storysync"), nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	base, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load manifest: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	e, err := edge.New(database, cfg, manifest, edge.Options{
		Logger: logging.New(os.Stderr, cfg.LogLevel),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(e)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'storysync --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(e, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
