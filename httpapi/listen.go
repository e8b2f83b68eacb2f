package httpapi

import (
	"context"
	"net"
	"net/http"

	"pkt.systems/pslog"
)

// ListenAndServe serves the control API on addr until ctx is cancelled, then
// drains in-flight requests within shutdownTimeout. Active event streams are
// closed by the shutdown deadline.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	logger := pslog.Ctx(ctx)
	server := &http.Server{
		Addr:     addr,
		Handler:  handler,
		ErrorLog: pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("control api shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("control api shutdown incomplete", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
