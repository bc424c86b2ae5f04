package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/storysync/internal/edge"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/mcp"
	"github.com/hpungsan/storysync/internal/ops"
	"github.com/hpungsan/storysync/internal/web"
)

// maxDescriptionBytes caps a story description read from stdin.
const maxDescriptionBytes = 64 << 10

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *edge.Edge) *cli.App {
	app := &cli.App{
		Name:    "storysync",
		Usage:   "Offline-first edge for the story app",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(e),
			mcpCmd(e),
			installCmd(e),
			activateCmd(e),
			partitionsCmd(e),
			statusCmd(e),
			listCmd(e),
			storeCmd(e),
			deleteCmd(e),
			syncCmd(e),
			pullCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the edge: proxy, admin pages and background sync",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Listen address (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			if listen := c.String("listen"); listen != "" {
				e.Config.Listen = listen
			}
			if err := web.Run(e, web.NewServer(e, Version)); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(e, Version)
		},
	}
}

// installCmd creates the install command.
func installCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Precache the static manifest into the current version's partition",
		Action: func(c *cli.Context) error {
			output, err := ops.Install(c.Context, e.Lifecycle)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// activateCmd creates the activate command.
func activateCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "activate",
		Usage: "Evict stale cache partitions (run after install)",
		Action: func(c *cli.Context) error {
			output, err := ops.Activate(c.Context, e.Lifecycle)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// partitionsCmd creates the partitions command.
func partitionsCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "partitions",
		Usage: "List cache partitions",
		Action: func(c *cli.Context) error {
			output, err := ops.Partitions(c.Context, e.DB, e.Lifecycle.Recognized())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show lifecycle state, pending count and partitions",
		Action: func(c *cli.Context) error {
			output, err := ops.Status(c.Context, e.DB, ops.StatusInput{
				State:      string(e.Lifecycle.State()),
				Version:    e.Lifecycle.Version(),
				Online:     e.Monitor.Online(),
				Clients:    e.Hub.Count(),
				Armed:      e.Scheduler.Armed(),
				Recognized: e.Lifecycle.Recognized(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stories in the local store",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Value: ops.FilterAll, Usage: "all|pending|synced"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, e.DB, ops.ListInput{
				Filter: c.String("filter"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// storeCmd creates the store command.
func storeCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "store",
		Usage: "Store a story offline (description from --description or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Story title"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Story text"},
			&cli.StringFlag{Name: "id", Usage: "Server id of an already-published story"},
			&cli.Float64Flag{Name: "lat", Usage: "Latitude"},
			&cli.Float64Flag{Name: "lon", Usage: "Longitude"},
			&cli.StringFlag{Name: "photo", Aliases: []string{"p"}, Usage: "Image file to attach"},
		},
		Action: func(c *cli.Context) error {
			description := c.String("description")
			if description == "" && stdinHasData() {
				text, err := readStdin(maxDescriptionBytes)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				description = text
			}

			output, err := ops.Store(c.Context, e.Offline, e.Scheduler, ops.StoreInput{
				ID:          c.String("id"),
				Name:        c.String("name"),
				Description: description,
				Lat:         c.Float64("lat"),
				Lon:         c.Float64("lon"),
				PhotoPath:   c.String("photo"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a story from the local store",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("story id is required"))
			}
			output, err := ops.Delete(c.Context, e.DB, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// syncCmd creates the sync command.
func syncCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Upload pending stories now",
		Action: func(c *cli.Context) error {
			output, err := ops.Sync(c.Context, e.Reconciler)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// pullCmd creates the pull command.
func pullCmd(e *edge.Edge) *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Mirror a page of server stories for offline reading",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
			&cli.IntFlag{Name: "size", Value: ops.DefaultPullSize, Usage: "Page size"},
			&cli.BoolFlag{Name: "location", Usage: "Only stories with a location"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Pull(c.Context, e.DB, e.API, e.Credentials, ops.PullInput{
				Page:     c.Int("page"),
				Size:     c.Int("size"),
				Location: c.Bool("location"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var eErr *errors.EdgeError
	if stderrors.As(err, &eErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", eErr.Code, eErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
