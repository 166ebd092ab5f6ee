package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sllt/batchrow/pkg/batchrow"
	"github.com/sllt/batchrow/pkg/batchrow/batch"
)

const selectPNR = "SELECT pnr_id, principle, si_total FROM pnr_info WHERE pnr_id > ? AND pnr_id < ? ORDER BY pnr_id"

var errInvalidRange = errors.New("invalid pnr_id range")

// pnrBuffers are the three int32 column arrays of a pnr_info row batch.
type pnrBuffers struct {
	id, principle, total *batch.Column[int32]
}

func newPNRBuffers(n int) (pnrBuffers, error) {
	var (
		b   pnrBuffers
		err error
	)

	if b.id, err = batch.NewColumn[int32](n); err != nil {
		return b, err
	}

	if b.principle, err = batch.NewColumn[int32](n); err != nil {
		return b, err
	}

	b.total, err = batch.NewColumn[int32](n)

	return b, err
}

func (b pnrBuffers) columns() []*batch.Column[int32] {
	return []*batch.Column[int32]{b.id, b.principle, b.total}
}

// row formats the three values of slot i; nulls print as NULL.
func (b pnrBuffers) row(i int) (id, principle, total string) {
	vals := make([]string, 3)

	for j, c := range b.columns() {
		v, ok, err := c.Get(i)

		switch {
		case err != nil:
			vals[j] = "?"
		case !ok:
			vals[j] = "NULL"
		default:
			vals[j] = strconv.Itoa(int(v))
		}
	}

	return vals[0], vals[1], vals[2]
}

// fetchRange runs selectPNR for min < pnr_id < max, n rows per round, and calls onRound for every round that
// returned rows.
func fetchRange(ctx context.Context, conn *batch.Connection, n int, minID, maxID int32,
	onRound func(round batch.Round, b pnrBuffers) error) error {
	stmt, err := conn.NewStatement(batch.WithRowArraySize(n))
	if err != nil {
		return err
	}

	defer stmt.Close()

	b, err := newPNRBuffers(n)
	if err != nil {
		return err
	}

	for i, c := range b.columns() {
		if err := stmt.BindCol(i+1, c); err != nil {
			return err
		}
	}

	lo, err := batch.NewColumn[int32](n)
	if err != nil {
		return err
	}

	hi, err := batch.NewColumn[int32](n)
	if err != nil {
		return err
	}

	if err := lo.Set(0, minID); err != nil {
		return err
	}

	if err := hi.Set(0, maxID); err != nil {
		return err
	}

	if err := stmt.BindParam(1, lo); err != nil {
		return err
	}

	if err := stmt.BindParam(2, hi); err != nil {
		return err
	}

	if err := stmt.Prepare(ctx, selectPNR); err != nil {
		return err
	}

	if err := stmt.Execute(ctx); err != nil {
		return err
	}

	for {
		round, err := stmt.Fetch(ctx)
		if err != nil {
			return err
		}

		if round.Count == 0 {
			return nil
		}

		if err := onRound(round, b); err != nil {
			return err
		}
	}
}

func rangeFlags(minID, maxID int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "min", Usage: "exclusive lower pnr_id bound", Value: minID},
		&cli.IntFlag{Name: "max", Usage: "exclusive upper pnr_id bound", Value: maxID},
	}
}

func newFetchCommand(newApp appFactory) *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch rows in rounds of N and print every round",
		Flags: append(rangeFlags(100, 1600), sizeFlag(5)),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Root().Writer

			return withApp(ctx, newApp, func(app *batchrow.App) error {
				conn, err := app.Connect(ctx)
				if err != nil {
					return err
				}

				return fetchRange(ctx, conn, batchSize(cmd, app), int32(cmd.Int("min")), int32(cmd.Int("max")),
					func(round batch.Round, b pnrBuffers) error {
						fmt.Fprintf(out, "Fetched %d rows:\n", round.Count)

						for i := 0; i < round.Count; i++ {
							if !round.Valid(i) {
								continue
							}

							id, principle, total := b.row(i)
							fmt.Fprintf(out, "PNR_ID: %s, Principle: %s, SI_Total: %s\n", id, principle, total)
						}

						return nil
					})
			})
		},
	}
}

// partition splits the open interval (minID, maxID) into at most k adjacent open intervals.
func partition(minID, maxID int32, k int) ([][2]int32, error) {
	if maxID-minID < 2 {
		return nil, errors.Wrapf(errInvalidRange, "(%d, %d)", minID, maxID)
	}

	if k < 1 {
		k = 1
	}

	width := (maxID - minID) / int32(k)
	if width < 1 {
		width, k = maxID-minID, 1
	}

	parts := make([][2]int32, 0, k)

	for p := 0; p < k; p++ {
		lo := minID + int32(p)*width
		hi := lo + width + 1

		if p == k-1 {
			hi = maxID
		}

		parts = append(parts, [2]int32{lo, hi})
	}

	return parts, nil
}

func newSelectCommand(newApp appFactory) *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "Fetch rows with a row array, optionally over concurrent range partitions",
		Flags: append(rangeFlags(1, 50), sizeFlag(10),
			&cli.IntFlag{Name: "partitions", Usage: "range partitions fetched concurrently", Value: 1}),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, newApp, func(app *batchrow.App) error {
				conn, err := app.Connect(ctx)
				if err != nil {
					return err
				}

				parts, err := partition(int32(cmd.Int("min")), int32(cmd.Int("max")), cmd.Int("partitions"))
				if err != nil {
					return err
				}

				return selectPartitions(ctx, cmd.Root().Writer, conn, batchSize(cmd, app), parts)
			})
		},
	}
}

// selectPartitions fetches every partition on its own statement and prints the results in partition order.
func selectPartitions(ctx context.Context, out io.Writer, conn *batch.Connection, n int, parts [][2]int32) error {
	lines := make([][]string, len(parts))

	g, ctx := errgroup.WithContext(ctx)

	for p, r := range parts {
		g.Go(func() error {
			return fetchRange(ctx, conn, n, r[0], r[1], func(round batch.Round, b pnrBuffers) error {
				for i := 0; i < round.Count; i++ {
					if !round.Valid(i) {
						continue
					}

					id, principle, total := b.row(i)
					lines[p] = append(lines[p], fmt.Sprintf("Row %d: PNR_ID = %s, Principle = %s, SI_Total = %s",
						i+1, id, principle, total))
				}

				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, part := range lines {
		for _, l := range part {
			fmt.Fprintln(out, l)
		}
	}

	return nil
}
