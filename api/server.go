package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dexquote/marketmaker/pkg/maker"
	"github.com/dexquote/marketmaker/pkg/models"
)

// Server exposes read-only observability endpoints over the running maker.
type Server struct {
	maker  *maker.MarketMaker
	logger *logrus.Logger
	port   string
}

func NewServer(m *maker.MarketMaker, logger *logrus.Logger, port string) *Server {
	return &Server{
		maker:  m,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/quotes", s.handleQuotes)

	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, _ := s.maker.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"best_bid_price":  state.BestBidPrice,
		"best_bid_amount": state.BestBidAmount,
		"best_ask_price":  state.BestAskPrice,
		"best_ask_amount": state.BestAskAmount,
		"mid_price":       state.MidPrice,
		"updated_nanos":   state.UpdatedNanos,
	})
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, orders := s.maker.Snapshot()
	if orders == nil {
		orders = []models.OrderRecord{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buy, sell := s.maker.TargetQuotes()
	s.writeJSON(w, http.StatusOK, map[string]models.Quote{
		"buy":  buy,
		"sell": sell,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
