package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mcdev12/stopify/go/internal/statusapi"
	"github.com/rs/zerolog/log"
)

func startStatusServer(port string, source statusapi.SnapshotSource) *http.Server {
	server := statusapi.NewServer(port, source)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server failed")
		}
	}()

	return server
}

func shutdownStatusServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shut down status server")
	}
}
