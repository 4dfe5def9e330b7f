package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// NewServer returns an HTTP server serving the lookup API on listenAddress.
func NewServer(log zerolog.Logger, backend RegistryAPI, health HealthChecker, listenAddress string) *http.Server {
	router := NewRouter(log, backend, health)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
			http.MethodHead},
	})

	return &http.Server{
		Addr:         listenAddress,
		Handler:      c.Handler(router),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
}

// NewRouter builds the lookup API router: the versioned API endpoints plus
// the prometheus metrics handler.
func NewRouter(log zerolog.Logger, backend RegistryAPI, health HealthChecker) *mux.Router {
	handler := NewAPIHandler(log, backend, health)

	router := mux.NewRouter().StrictSlash(true)
	router.Use(LoggingMiddleware(log))

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/lookup/get_addresses", handler.GetLookupAddresses).Methods(http.MethodPost)
	v1.HandleFunc("/health", handler.GetHealth).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return router
}
