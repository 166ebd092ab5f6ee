package batchrow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sllt/batchrow/pkg/batchrow/logging"
	"github.com/sllt/batchrow/pkg/batchrow/metrics"
)

type metricServer struct {
	port   int
	srv    *http.Server
	logger logging.Logger
}

func newMetricServer(port int, logger logging.Logger, manager metrics.Manager) *metricServer {
	return &metricServer{
		port:   port,
		logger: logger,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           metrics.GetHandler(manager),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (m *metricServer) Run() {
	if m != nil {
		m.logger.Logf("Starting metrics server on port: %d", m.port)

		err := m.srv.ListenAndServe()

		if !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("error while listening to metrics server, err: %v", err)
		}
	}
}

func (m *metricServer) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}

	return ShutdownWithContext(ctx, func(ctx context.Context) error {
		return m.srv.Shutdown(ctx)
	}, m.srv.Close)
}
