package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// pnrRow is one pnr_info row. A missing principle or si_total is written as NULL.
type pnrRow struct {
	PNRID     int32  `yaml:"pnr_id"`
	Principle *int32 `yaml:"principle"`
	SITotal   *int32 `yaml:"si_total"`
}

type rowsFile struct {
	Rows []pnrRow `yaml:"rows"`
}

var errNoRows = errors.New("rows file holds no rows")

func loadRows(path string) ([]pnrRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading rows file")
	}

	var f rowsFile

	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing rows file %s", path)
	}

	if len(f.Rows) == 0 {
		return nil, errors.Wrap(errNoRows, path)
	}

	return f.Rows, nil
}

func row(id, principle, total int32) pnrRow {
	return pnrRow{PNRID: id, Principle: &principle, SITotal: &total}
}

func defaultInsertRows() []pnrRow {
	return []pnrRow{
		row(13, 123, 1000),
		row(14, 456, 2000),
		row(15, 789, 3000),
		row(16, 1011, 4000),
		row(17, 1213, 5000),
	}
}

func defaultUpdateRows() []pnrRow {
	return []pnrRow{
		row(101, 1500, 15),
		row(102, 2500, 25),
		row(103, 3500, 35),
		row(104, 4500, 45),
		row(105, 5500, 55),
	}
}
