package batchrow

import (
	"context"
	"errors"
)

// ShutdownWithContext runs shutdownFunc and waits for it or for ctx to end, whichever comes first. When ctx ends
// first, forceCloseFunc (if any) is called and its error is joined with the context error.
func ShutdownWithContext(ctx context.Context, shutdownFunc func(ctx context.Context) error, forceCloseFunc func() error) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- shutdownFunc(ctx)
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()

		if forceCloseFunc != nil {
			err = errors.Join(err, forceCloseFunc())
		}

		return err
	case err := <-errCh:
		return err
	}
}
