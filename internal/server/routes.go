package server

import "net/http"

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /model", s.handleModel)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /budget", s.handleBudget)
	mux.HandleFunc("GET /calories", s.handleCalories)

	return mux
}
