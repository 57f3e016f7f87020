package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"rodlot/config"
	"rodlot/database"
	"rodlot/prefetch"
	"rodlot/sheet"
	"rodlot/syncer"
)

func main() {
	log.Println("Connecting to database...")
	dbConn, err := sqlx.Open("sqlite3", "./rodlot.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer dbConn.Close()
	log.Println("Database connection successful.")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("WARN: Failed to load config file: %v. Using defaults.", err)
		cfg = config.Fallback()
	}
	if cfg.SheetScriptURL == "" {
		log.Println("WARN: Sheet script URL not configured. Allocation will run offline-only until it is set via /api/settings.")
	}

	if err := database.InitDatabase(dbConn); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	log.Println("Database initialization complete.")

	timeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
	sheetClient := sheet.NewClient(func() string {
		return config.GetConfig().SheetScriptURL
	}, timeout)
	prefetcher := prefetch.New(sheetClient)
	queue := syncer.New(64, timeout+5*time.Second)
	defer queue.Close()

	router := SetupRoutes(dbConn, sheetClient, prefetcher, queue)

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	log.Printf("Starting server on http://localhost%s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("server start error: %v", err)
	}
}
