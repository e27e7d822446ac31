// Mockupstream is a stand-in admin API used to exercise the proxy locally.
// It answers the broker health probe, echoes every other request back as
// JSON and streams a chunked response under /stream.
//
// Usage:
//
//	go run ./scripts/mockupstream -port 8080 -token secret
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/angeloszaimis/api-proxy/pkg/logger"
)

// Echo is the response body for every non-health request.
type Echo struct {
	Method        string          `json:"method"`
	Path          string          `json:"path"`
	Query         string          `json:"query,omitempty"`
	Authorization string          `json:"authorization,omitempty"`
	Accept        string          `json:"accept,omitempty"`
	ContentType   string          `json:"content_type,omitempty"`
	Body          json.RawMessage `json:"body,omitempty"`
}

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	token := flag.String("token", "", "bearer token required on every request, empty accepts all")
	flag.Parse()

	log := logger.New("debug", false, "dev")

	mux := http.NewServeMux()

	mux.HandleFunc("/admin/v2/brokers/health", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, *token) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		chunks, _ := strconv.Atoi(r.URL.Query().Get("chunks"))
		if chunks <= 0 {
			chunks = 5
		}

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < chunks; i++ {
			fmt.Fprintf(w, "chunk %d\n", i)
			if err := rc.Flush(); err != nil {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r, *token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Info("Received request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("from", r.RemoteAddr),
			slog.Int("body_bytes", len(body)))

		echo := Echo{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Accept:        r.Header.Get("Accept"),
			ContentType:   r.Header.Get("Content-Type"),
		}
		if json.Valid(body) {
			echo.Body = body
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(echo)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("Starting mock upstream", slog.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func authorized(r *http.Request, token string) bool {
	return token == "" || r.Header.Get("Authorization") == "Bearer "+token
}
