// Package testutil has helpers shared by batchrow tests.
package testutil

import (
	"bytes"
	"io"
	"os"
)

// StdoutOutputForFunc runs f with os.Stdout redirected and returns what f wrote there.
func StdoutOutputForFunc(f func()) string {
	r, w, _ := os.Pipe()

	old := os.Stdout
	os.Stdout = w

	f()

	_ = w.Close()
	os.Stdout = old

	var out bytes.Buffer

	_, _ = io.Copy(&out, r)

	return out.String()
}

// StderrOutputForFunc runs f with os.Stderr redirected and returns what f wrote there.
func StderrOutputForFunc(f func()) string {
	r, w, _ := os.Pipe()

	old := os.Stderr
	os.Stderr = w

	f()

	_ = w.Close()
	os.Stderr = old

	var out bytes.Buffer

	_, _ = io.Copy(&out, r)

	return out.String()
}
