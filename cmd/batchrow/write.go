package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/sllt/batchrow/pkg/batchrow"
	"github.com/sllt/batchrow/pkg/batchrow/batch"
	ksql "github.com/sllt/batchrow/pkg/batchrow/datasource/sql"
)

const (
	insertPNR = "INSERT INTO pnr_info (pnr_id, principle, si_total) VALUES (?, ?, ?)"
	updatePNR = "UPDATE pnr_info SET principle = ?, si_total = ? WHERE pnr_id = ?"
)

func writeFlags() []cli.Flag {
	return []cli.Flag{
		sizeFlag(5),
		&cli.StringFlag{Name: "rows", Usage: "YAML file with the rows to write"},
		&cli.BoolFlag{Name: "no-atomic", Usage: "run every row on its own and report failures per row"},
	}
}

func newInsertCommand(newApp appFactory) *cli.Command {
	return &cli.Command{
		Name:  "insert",
		Usage: "Insert rows in batches of N",
		Flags: writeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rows, err := commandRows(cmd, defaultInsertRows)
			if err != nil {
				return err
			}

			return withApp(ctx, newApp, func(app *batchrow.App) error {
				n, err := runWrite(ctx, cmd, app, insertPNR, rows, func(r pnrRow) []*int32 {
					return []*int32{&r.PNRID, r.Principle, r.SITotal}
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.Root().Writer, "Batch insertion successful! Rows inserted: %d\n", n)

				return nil
			})
		},
	}
}

func newUpdateCommand(newApp appFactory) *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Update principle and si_total by pnr_id in batches of N",
		Flags: writeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rows, err := commandRows(cmd, defaultUpdateRows)
			if err != nil {
				return err
			}

			return withApp(ctx, newApp, func(app *batchrow.App) error {
				n, err := runWrite(ctx, cmd, app, updatePNR, rows, func(r pnrRow) []*int32 {
					return []*int32{r.Principle, r.SITotal, &r.PNRID}
				})
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.Root().Writer, "Rows updated in a single batch: %d\n", n)

				return nil
			})
		},
	}
}

func commandRows(cmd *cli.Command, defaults func() []pnrRow) ([]pnrRow, error) {
	if path := cmd.String("rows"); path != "" {
		return loadRows(path)
	}

	return defaults(), nil
}

// runWrite binds one parameter column per placeholder and executes query over rows in chunks of N; the last chunk
// may be partial. params maps a row to its parameter values in placeholder order. It returns the total row count.
func runWrite(ctx context.Context, cmd *cli.Command, app *batchrow.App, query string, rows []pnrRow,
	params func(pnrRow) []*int32) (int64, error) {
	conn, err := app.Connect(ctx)
	if err != nil {
		return 0, err
	}

	n := batchSize(cmd, app)

	stmt, err := conn.NewStatement(batch.WithRowArraySize(n), batch.WithAtomicBatch(!cmd.Bool("no-atomic")))
	if err != nil {
		return 0, err
	}

	defer stmt.Close()

	cols := make([]*batch.Column[int32], ksql.CountPlaceholders(query))

	for i := range cols {
		if cols[i], err = batch.NewColumn[int32](n); err != nil {
			return 0, err
		}

		if err := stmt.BindParam(i+1, cols[i]); err != nil {
			return 0, err
		}
	}

	if err := stmt.Prepare(ctx, query); err != nil {
		return 0, err
	}

	var total int64

	for start := 0; start < len(rows); start += n {
		chunk := rows[start:min(start+n, len(rows))]

		if err := fill(cols, chunk, params); err != nil {
			return total, err
		}

		if err := stmt.SetParamsetSize(len(chunk)); err != nil {
			return total, err
		}

		if err := stmt.Execute(ctx); err != nil {
			return total, err
		}

		count, err := stmt.RowCount()
		if err != nil {
			return total, err
		}

		total += count

		reportFailures(cmd.Root().Writer, stmt, start)
	}

	return total, nil
}

func fill(cols []*batch.Column[int32], chunk []pnrRow, params func(pnrRow) []*int32) error {
	for i, r := range chunk {
		for j, v := range params(r) {
			var err error

			if v == nil {
				err = cols[j].SetNull(i)
			} else {
				err = cols[j].Set(i, *v)
			}

			if err != nil {
				return err
			}
		}
	}

	return nil
}

// reportFailures prints the rows of a non-atomic chunk that failed. offset is the index of the chunk's first row.
func reportFailures(out io.Writer, stmt *batch.Statement, offset int) {
	for _, d := range stmt.Diagnostics() {
		if d.Row > 0 {
			fmt.Fprintf(out, "Row %d failed: %s\n", offset+d.Row, d)
		}
	}
}
