// Command collector is a development telemetry collector: it accepts the
// per-sample WebSocket connections of the tracker and logs every location event.
package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"supmap-tracking/internal/telemetry"
)

func handleWS(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept error", "error", err)
			return
		}
		defer conn.CloseNow()

		for {
			var msg telemetry.Message
			err := wsjson.Read(ctx, conn, &msg)
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			if err != nil {
				logger.Warn("read error", "error", err)
				return
			}

			if msg.Type != "location" {
				logger.Warn("unknown message type", "type", msg.Type)
				continue
			}
			logger.Info("location received",
				"latitude", msg.Data.Latitude,
				"longitude", msg.Data.Longitude,
				"accuracy", msg.Data.Accuracy,
				"timestamp", msg.Data.Timestamp,
			)
		}
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	addr := ":8081"
	if v := os.Getenv("COLLECTOR_ADDR"); v != "" {
		addr = v
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleWS(logger))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	logger.Info("telemetry collector listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
