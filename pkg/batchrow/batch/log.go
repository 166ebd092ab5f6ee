package batch

import (
	"fmt"
	"io"
)

// Log is the debug entry written for every prepare, execute and fetch round.
type Log struct {
	Op        string `json:"op"`
	Statement uint64 `json:"statement"`
	State     string `json:"state"`
	Rows      int64  `json:"rows"`
	Duration  int64  `json:"duration"`
	Query     string `json:"query,omitempty"`
}

func (l *Log) PrettyPrint(writer io.Writer) {
	fmt.Fprintf(writer, "\u001B[38;5;8m%-32s \u001B[38;5;24m%-6s\u001B[0m %8d\u001B[38;5;8mµs\u001B[0m stmt=%d rows=%d %s\n",
		l.Op, "BATCH", l.Duration, l.Statement, l.Rows, l.State)
}
