package main

import (
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"rodlot/bulk"
	"rodlot/capture"
	"rodlot/history"
	"rodlot/prefetch"
	"rodlot/settings"
	"rodlot/sheet"
	"rodlot/syncer"
)

func SetupRoutes(dbConn *sqlx.DB, sheetClient *sheet.Client, prefetcher *prefetch.Prefetcher, queue *syncer.Queue) *mux.Router {
	r := mux.NewRouter()

	captureDeps := &capture.Deps{DB: dbConn, Sheet: sheetClient, Prefetch: prefetcher, Queue: queue}
	historyDeps := &history.Deps{DB: dbConn, Sheet: sheetClient, Prefetch: prefetcher, Queue: queue}
	bulkDeps := &bulk.Deps{DB: dbConn, Sheet: sheetClient}

	r.HandleFunc("/api/capture/save", capture.SaveHandler(captureDeps)).Methods("POST")
	r.HandleFunc("/api/capture/prefetch", capture.PrefetchHandler(captureDeps)).Methods("POST")
	r.HandleFunc("/api/capture/last", capture.LastBatchHandler(captureDeps)).Methods("GET")
	r.HandleFunc("/api/capture/sae", capture.SAEHandler(captureDeps)).Methods("GET")
	r.HandleFunc("/api/capture/grades", capture.GradesHandler()).Methods("GET")

	r.HandleFunc("/api/history", history.ListHandler(historyDeps)).Methods("GET")
	r.HandleFunc("/api/history/page", history.PageHandler(historyDeps)).Methods("GET")
	r.HandleFunc("/api/history/update", history.UpdateHandler(historyDeps)).Methods("POST")
	r.HandleFunc("/api/history/{id}", history.DeleteHandler(historyDeps)).Methods("DELETE")

	r.HandleFunc("/api/bulk/generate", bulk.GenerateHandler(bulkDeps)).Methods("POST")

	r.HandleFunc("/api/settings", settings.GetHandler()).Methods("GET")
	r.HandleFunc("/api/settings", settings.SaveHandler()).Methods("POST")
	r.HandleFunc("/api/settings/ping", settings.PingHandler(sheetClient)).Methods("GET")

	return r
}
