/*
Package datasource holds what batchrow data sources share. The SQL data source in the sql sub package is the
backing store for every batch transfer.
*/
package datasource

// Logger is the subset of logging.Logger that data sources log through.
type Logger interface {
	Debug(args ...any)
	Debugf(pattern string, args ...any)
	Info(args ...any)
	Infof(pattern string, args ...any)
	Warn(args ...any)
	Warnf(pattern string, args ...any)
	Error(args ...any)
	Errorf(pattern string, args ...any)
}
