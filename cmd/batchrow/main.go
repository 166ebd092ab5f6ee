package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/sllt/batchrow/cmd/batchrow/migrations"
	"github.com/sllt/batchrow/pkg/batchrow"
	"github.com/sllt/batchrow/pkg/batchrow/migration"
)

const version = "v0.1.0"

type appFactory func() (*batchrow.App, error)

func main() {
	if err := newRootCommand(batchrow.New).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(newApp appFactory) *cli.Command {
	return &cli.Command{
		Name:    "batchrow",
		Usage:   "Batch row fetch, insert and update against the pnr_info table",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create and seed the pnr_info table",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, newApp, func(app *batchrow.App) error {
						conn, err := app.Connect(ctx)
						if err != nil {
							return err
						}

						if err := migration.Run(ctx, migrations.All(), conn.DB(), app.Logger()); err != nil {
							return err
						}

						fmt.Fprintln(cmd.Root().Writer, "Migrations applied")

						return nil
					})
				},
			},
			newFetchCommand(newApp),
			newSelectCommand(newApp),
			newInsertCommand(newApp),
			newUpdateCommand(newApp),
		},
	}
}

// withApp builds the App, runs f and shuts the App down, closing every connection f opened.
func withApp(ctx context.Context, newApp appFactory, f func(app *batchrow.App) error) error {
	app, err := newApp()
	if err != nil {
		return err
	}

	err = f(app)

	if shutdownErr := app.Shutdown(ctx); err == nil {
		err = shutdownErr
	}

	return err
}

func sizeFlag(def int) *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "size",
		Usage: "rows per round, overrides BATCH_SIZE",
		Value: def,
	}
}

// batchSize resolves N: the --size flag when given, then BATCH_SIZE, then the command default.
func batchSize(cmd *cli.Command, app *batchrow.App) int {
	if cmd.IsSet("size") {
		return cmd.Int("size")
	}

	return app.BatchSize(cmd.Int("size"))
}
