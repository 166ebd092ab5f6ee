package sql

import "context"

// Metrics records the SQL query histogram.
type Metrics interface {
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}
