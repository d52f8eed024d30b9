package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/repo"
)

func main() {
	var (
		addr    string
		runs    int
		samples int
		seedDSN string
	)
	flag.StringVar(&addr, "addr", ":8080", "Listen address")
	flag.IntVar(&runs, "runs", 3, "Number of synthetic experiment runs")
	flag.IntVar(&samples, "samples", 180, "Samples (seconds) per run")
	flag.StringVar(&seedDSN, "seed-sqlite", "", "Write the runs into this sqlite database and exit")
	flag.Parse()

	logger := log.New(log.Writer(), "core-mock ", log.LstdFlags|log.Lmicroseconds)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make(map[string]repo.RunRecord, runs)
	summaries := make([]repo.RunSummary, 0, runs)
	for i := 1; i <= runs; i++ {
		rec, startedAt := syntheticRun(i, samples, start.Add(time.Duration(i)*time.Hour))
		records[rec.ID] = rec
		summaries = append(summaries, repo.RunSummary{ID: rec.ID, Name: rec.Name, StartedAt: startedAt})
	}

	if seedDSN != "" {
		if err := seed(seedDSN, records, summaries); err != nil {
			logger.Fatalf("seed error: %v", err)
		}
		logger.Printf("seeded %d runs into %s", len(summaries), seedDSN)
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/experiments", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{"runs": summaries})
	})

	mux.HandleFunc("/api/v1/experiments/run", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			RunID string `json:"run_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec, ok := records[req.RunID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, rec)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("serving %d synthetic runs on %s", len(summaries), addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func seed(dsn string, records map[string]repo.RunRecord, summaries []repo.RunSummary) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repo.OpenSQLStore(ctx, "sqlite", dsn, slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	for _, s := range summaries {
		if err := store.SaveRun(ctx, records[s.ID], s.StartedAt); err != nil {
			return err
		}
	}
	return nil
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
