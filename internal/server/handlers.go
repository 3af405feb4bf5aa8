package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/monitor"
	"github.com/haskel/foodia/internal/recognizer"
	"github.com/haskel/foodia/internal/server/middleware"
)

// multipartMemory is the in-memory part of a parsed upload; the rest spills
// to temporary files.
const multipartMemory = 8 << 20

type InfoResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

type HealthResponse struct {
	Status string             `json:"status"`
	Host   *monitor.HostState `json:"host,omitempty"`
}

type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	RunID   string `json:"run_id,omitempty"`
	Classes int    `json:"classes,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ModelResponse struct {
	artifact.Info
	Loaded  bool     `json:"loaded"`
	Classes []string `json:"classes,omitempty"`
}

type PredictResponse struct {
	recognizer.Result
	Budget *budget.Evaluation `json:"budget,omitempty"`
}

type BudgetRequest struct {
	Calories  float64 `json:"calories"`
	Goal      string  `json:"goal"`
	Slot      string  `json:"slot,omitempty"`
	Budget    float64 `json:"budget,omitempty"`
	DailyGoal float64 `json:"daily_goal,omitempty"`
}

type CaloriesResponse struct {
	Meal     string  `json:"meal"`
	Calories float64 `json:"calories"`
	Source   string  `json:"source"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, InfoResponse{
		Name:    "foodia",
		Version: s.version,
		Endpoints: []string{
			"GET /health", "GET /ready", "GET /model",
			"POST /predict", "POST /budget", "GET /calories",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.aggregator != nil {
		resp.Host = s.aggregator.GetState()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	rt := s.current()
	art, err := rt.recognizer.Artifact()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, ReadyResponse{
		Ready:   true,
		RunID:   art.Manifest.RunID,
		Classes: art.Codec.Len(),
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	rt := s.current()
	resp := ModelResponse{Info: rt.store.Info()}
	if art, err := rt.recognizer.Artifact(); err == nil {
		resp.Loaded = true
		resp.Classes = art.Codec.Labels()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	rt := s.current()
	q := r.URL.Query()

	topK := rt.config.Inference.TopK
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	// budget parameters are validated before the image is read
	var in *budget.Input
	if goal := q.Get("goal"); goal != "" {
		req := BudgetRequest{Goal: goal, Slot: q.Get("slot")}
		var err error
		if req.Budget, err = optionalFloat(q.Get("budget")); err != nil {
			s.writeError(w, http.StatusBadRequest, "budget: "+err.Error())
			return
		}
		if req.DailyGoal, err = optionalFloat(q.Get("daily_goal")); err != nil {
			s.writeError(w, http.StatusBadRequest, "daily_goal: "+err.Error())
			return
		}
		resolved, err := budget.Resolve(req.Goal, req.Slot, req.Budget, req.DailyGoal)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in = &resolved
	}

	data, err := readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", tooLarge.Limit))
		default:
			s.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	result := rt.recognizer.PredictBytes(data, topK)
	resp := PredictResponse{Result: result}

	if !result.Success {
		status := http.StatusUnprocessableEntity
		if !rt.recognizer.Ready() {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("prediction failed",
			"request_id", middleware.RequestID(r.Context()),
			"error", result.Error,
		)
		s.writeJSON(w, status, resp)
		return
	}

	if in != nil {
		in.Calories = result.Calories
		// input was validated above
		eval, _ := budget.Evaluate(*in)
		resp.Budget = &eval
	}

	s.logger.Debug("prediction",
		"request_id", middleware.RequestID(r.Context()),
		"meal", result.Meal,
		"confidence", result.Confidence,
		"calories", result.Calories,
	)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Calories < 0 {
		s.writeError(w, http.StatusBadRequest, "calories must not be negative")
		return
	}

	in, err := budget.Resolve(req.Goal, req.Slot, req.Budget, req.DailyGoal)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Calories = req.Calories

	eval, err := budget.Evaluate(in)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleCalories(w http.ResponseWriter, r *http.Request) {
	rt := s.current()
	meal := strings.TrimSpace(r.URL.Query().Get("meal"))
	if meal == "" {
		s.writeError(w, http.StatusBadRequest, "meal query parameter is required")
		return
	}

	cal, exact := rt.recognizer.LookupCalories(meal)
	source := "estimate"
	if exact {
		source = "table"
	}
	s.writeJSON(w, http.StatusOK, CaloriesResponse{Meal: meal, Calories: cal, Source: source})
}

func optionalFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, errors.New("must be a non-negative number")
	}
	return f, nil
}

// readImage accepts either a multipart form with an "image" file field or
// the raw image as the request body.
func readImage(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("empty request body")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	f, _, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("multipart field %q: %w", "image", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status,
		)
	}
}
