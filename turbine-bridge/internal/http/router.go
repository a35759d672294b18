package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter 注册桥接服务路由，并包上 CORS 与访问日志
func NewRouter(api *API, metrics http.Handler, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", api.Health).Methods(http.MethodGet)
	r.HandleFunc("/history", api.History).Methods(http.MethodGet)
	r.HandleFunc("/control", api.Control).Methods(http.MethodPost)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", api.Stream).Methods(http.MethodGet)
	r.HandleFunc("/", api.Stream).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	accessLog := zap.NewStdLog(logger.Named("access")).Writer()
	return handlers.LoggingHandler(accessLog, cors(r))
}
