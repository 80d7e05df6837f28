package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/relay"
)

// Server exposes the relayer over HTTP and WebSocket: duplex maker/taker
// envelope channels, the market subscription feed, and the order snapshot.
type Server struct {
	engine *relay.Engine
	router *mux.Router
	log    *zap.SugaredLogger
}

func NewServer(engine *relay.Engine, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Duplex envelope channels
	s.router.HandleFunc("/ws/maker", s.handleChannel(relay.RoleMaker))
	s.router.HandleFunc("/ws/taker", s.handleChannel(relay.RoleTaker))

	// Market order feed (no backfill)
	s.router.HandleFunc("/ws/orders", s.handleSubscribeOrders)

	// Point-in-time snapshot
	s.router.HandleFunc("/v1/orders", s.handleGetOrders).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	counter := r.URL.Query().Get("counter")
	if base == "" || counter == "" {
		respondError(w, http.StatusBadRequest, "base and counter symbols are required", "")
		return
	}

	updates, err := s.engine.ListOrders(base + counter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if updates == nil {
		updates = []relay.OrderUpdate{}
	}

	respondJSON(w, GetOrdersResponse{OrderUpdates: updates})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
