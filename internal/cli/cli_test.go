package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haskel/foodia/internal/artifact"
	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/codec"
	"github.com/haskel/foodia/internal/config"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/nn"
	"github.com/haskel/foodia/internal/nutrition"
	"github.com/haskel/foodia/internal/recognizer"
	"github.com/haskel/foodia/internal/server"
	"github.com/haskel/foodia/internal/server/middleware"
)

func resetFlags() {
	cfgFile, envFiles, serverURL = "", nil, ""
	host, port = "localhost", 8501
	jsonOut, verbose = false, false
	predictTopK, predictBudget = 0, budgetFlags{}
	budgetCalories, budgetInput = 0, budgetFlags{}
	validateOnly = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeConfig points artifacts at a fresh directory and returns the config path.
func writeConfig(t *testing.T) (path, artifactsDir, nutritionDB string) {
	t.Helper()
	dir := t.TempDir()
	artifactsDir = filepath.Join(dir, "models")
	nutritionDB = filepath.Join(dir, "models", "nutrition.db")
	path = filepath.Join(dir, "foodia.yaml")

	yaml := fmt.Sprintf("logging:\n  level: error\nartifacts:\n  dir: %q\n  nutrition_db: %q\n", artifactsDir, nutritionDB)
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, artifactsDir, nutritionDB
}

func saveModel(t *testing.T, dir string, labels ...string) *artifact.Store {
	t.Helper()
	c, err := codec.FitSorted(labels)
	if err != nil {
		t.Fatal(err)
	}
	backbone, err := nn.NewConvBackbone([]int{4}, 1)
	if err != nil {
		t.Fatal(err)
	}
	model, err := nn.Build(c.Len(), backbone, nn.HeadConfig{Units: []int{4}, Dropout: []float64{0.5}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	store := artifact.NewStore(dir, nil)
	if _, err := store.Save(context.Background(), &artifact.Artifact{
		Manifest: artifact.Manifest{ImageSize: 16},
		Model:    model,
		Codec:    c,
		Classes:  c.Labels(),
	}); err != nil {
		t.Fatal(err)
	}
	return store
}

func writePhoto(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 10), G: 120, B: uint8(y * 10), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "lunch.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGetServerURL(t *testing.T) {
	t.Cleanup(resetFlags)

	tests := []struct {
		name      string
		host      string
		port      int
		serverURL string
		want      string
	}{
		{"defaults", "localhost", 8501, "", "http://localhost:8501"},
		{"custom host and port", "192.168.1.100", 9000, "", "http://192.168.1.100:9000"},
		{"server flag wins", "localhost", 8501, "https://food.example.com", "https://food.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, serverURL = tt.host, tt.port, tt.serverURL
			if got := GetServerURL(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSetVersion(t *testing.T) {
	old := Version
	t.Cleanup(func() { SetVersion(old) })

	SetVersion("1.2.3")
	if Version != "1.2.3" || rootCmd.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s / %s", Version, rootCmd.Version)
	}
}

func TestNewClient(t *testing.T) {
	t.Cleanup(resetFlags)
	serverURL = "http://localhost:8501/"

	client := NewClient()
	if client.baseURL != "http://localhost:8501" {
		t.Errorf("expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.http.Timeout == 0 {
		t.Error("expected a request timeout")
	}
}

// remoteServer starts a foodia server over a model trained on labels.
func remoteServer(t *testing.T, labels ...string) *httptest.Server {
	t.Helper()
	store := saveModel(t, t.TempDir(), labels...)
	log := logger.Discard()
	table := nutrition.NewTable()
	table.Add("Ramen", 540, true)
	srv := server.New(config.Default(), recognizer.New(store, table, log), store, nil, log, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_PredictHeaders(t *testing.T) {
	t.Cleanup(resetFlags)

	var got *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"success":true,"meal":"Pizza","top_predictions":[]}`))
	}))
	defer ts.Close()

	serverURL = ts.URL

	data, err := os.ReadFile(writePhoto(t))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewClient().Predict(context.Background(), data, url.Values{"top_k": {"2"}})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Meal != "Pizza" {
		t.Errorf("unexpected response %+v", resp)
	}
	if ct := got.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Header.Get("Accept"))
	}
	if got.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if got.URL.Query().Get("top_k") != "2" {
		t.Errorf("query = %q", got.URL.RawQuery)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Cleanup(resetFlags)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"success":false,"error":"cannot decode image"}`))
		case "/budget":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unknown goal \"bulk\""}`))
		default:
			http.Error(w, "gateway down", http.StatusBadGateway)
		}
	}))
	defer ts.Close()
	serverURL = ts.URL
	client := NewClient()
	ctx := context.Background()

	resp, err := client.Predict(ctx, []byte("not an image"), nil)
	if err != nil {
		t.Fatalf("a failed prediction should not be a transport error: %v", err)
	}
	if resp.Success || resp.Error != "cannot decode image" {
		t.Errorf("unexpected response %+v", resp)
	}

	_, err = client.Budget(ctx, server.BudgetRequest{Calories: 500, Goal: "bulk"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || !strings.Contains(apiErr.Message, "bulk") {
		t.Errorf("unexpected budget error %v", err)
	}

	_, err = client.Health(ctx)
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway || apiErr.Message != "gateway down" {
		t.Errorf("unexpected health error %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	ts := remoteServer(t, "Pizza", "Ramen")

	out, err := execute(t, "status", "--server", ts.URL, "--json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}

	var got statusOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Status != "ok" {
		t.Errorf("status = %q", got.Status)
	}
	if got.Model == nil || !got.Model.Loaded || len(got.Model.Classes) != 2 {
		t.Errorf("unexpected model section %+v", got.Model)
	}
}

func TestStatusCommand_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	if _, err := execute(t, "status", "--server", addr); err == nil {
		t.Error("expected an error for an unreachable server")
	}
}

func TestBudgetCommand(t *testing.T) {
	out, err := execute(t, "budget", "--calories", "650", "--goal", "weight_loss", "--slot", "lunch", "--json")
	if err != nil {
		t.Fatalf("budget: %v", err)
	}

	var eval budget.Evaluation
	if err := json.Unmarshal([]byte(out), &eval); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if eval.Status != budget.StatusDiscouraged {
		t.Errorf("status = %s, want discouraged", eval.Status)
	}
	if eval.RemainingBudget != -50 {
		t.Errorf("remaining = %v, want -50", eval.RemainingBudget)
	}
}

func TestBudgetCommand_Styled(t *testing.T) {
	out, err := execute(t, "budget", "--calories", "690", "--goal", "maintenance", "--slot", "lunch")
	if err != nil {
		t.Fatalf("budget: %v", err)
	}
	if !strings.Contains(out, "perfect") {
		t.Errorf("output %q does not mention the status", out)
	}
}

func TestBudgetCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown goal", []string{"budget", "--calories", "500", "--goal", "bulk", "--slot", "lunch"}},
		{"no slot or budget", []string{"budget", "--calories", "500", "--goal", "maintenance"}},
		{"negative calories", []string{"budget", "--calories", "-1", "--goal", "maintenance", "--slot", "lunch"}},
		{"missing goal", []string{"budget", "--calories", "500"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestCaloriesCommand(t *testing.T) {
	cfgPath, _, dbPath := writeConfig(t)

	store, err := nutrition.OpenStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	table := nutrition.NewTable()
	table.Add("Ramen", 540, true)
	if err := store.Replace(context.Background(), table); err != nil {
		t.Fatal(err)
	}
	store.Close()

	tests := []struct {
		meal   string
		want   float64
		source string
	}{
		{"Ramen", 540, "table"},
		{"Caesar Salad", nutrition.SoupSaladCalories, "estimate"},
		{"Something", nutrition.DefaultCalories, "estimate"},
	}
	for _, tt := range tests {
		t.Run(tt.meal, func(t *testing.T) {
			out, err := execute(t, "calories", tt.meal, "-c", cfgPath, "--json")
			if err != nil {
				t.Fatalf("calories: %v", err)
			}
			var got caloriesOutput
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("decode %q: %v", out, err)
			}
			if got.Calories != tt.want || got.Source != tt.source {
				t.Errorf("got %v (%s), want %v (%s)", got.Calories, got.Source, tt.want, tt.source)
			}
		})
	}
}

func TestBudgetCommand_Remote(t *testing.T) {
	ts := remoteServer(t, "Pizza", "Ramen")

	out, err := execute(t, "budget", "--calories", "650", "--goal", "weight_loss", "--slot", "lunch", "--server", ts.URL, "--json")
	if err != nil {
		t.Fatalf("budget: %v\n%s", err, out)
	}
	var eval budget.Evaluation
	if err := json.Unmarshal([]byte(out), &eval); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if eval.Status != budget.StatusDiscouraged || eval.RemainingBudget != -50 {
		t.Errorf("unexpected evaluation %+v", eval)
	}

	if _, err := execute(t, "budget", "--calories", "650", "--goal", "bulk", "--slot", "lunch", "--server", ts.URL); err == nil {
		t.Error("expected the server to reject an unknown goal")
	}
}

func TestCaloriesCommand_Remote(t *testing.T) {
	ts := remoteServer(t, "Pizza", "Ramen")

	for meal, want := range map[string]caloriesOutput{
		"Ramen":        {Meal: "Ramen", Calories: 540, Source: "table"},
		"Cheeseburger": {Meal: "Cheeseburger", Calories: nutrition.FastFoodCalories, Source: "estimate"},
	} {
		out, err := execute(t, "calories", meal, "--server", ts.URL, "--json")
		if err != nil {
			t.Fatalf("calories %s: %v", meal, err)
		}
		var got caloriesOutput
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	}
}

func TestConfigCommand_Validate(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	out, err := execute(t, "config", "--validate", "--json", "-c", cfgPath)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.TrimSpace(out) != `{"valid":true}` {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConfigCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("training:\n  batch_size: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "--validate", "--json", "-c", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `"valid":false`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPredictCommand_Local(t *testing.T) {
	cfgPath, artifactsDir, _ := writeConfig(t)
	saveModel(t, artifactsDir, "Pizza", "Ramen", "Salad")

	out, err := execute(t, "predict", writePhoto(t), "-c", cfgPath, "--top-k", "2", "--goal", "muscle_gain", "--slot", "dinner", "--json")
	if err != nil {
		t.Fatalf("predict: %v\n%s", err, out)
	}

	var got predictOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !got.Success || len(got.TopPredictions) != 2 {
		t.Errorf("unexpected result %+v", got.Result)
	}
	if got.Budget == nil || got.Budget.RemainingBudget != 800-got.Calories {
		t.Errorf("unexpected budget %+v", got.Budget)
	}
}

func TestPredictCommand_NoModel(t *testing.T) {
	cfgPath, _, _ := writeConfig(t)

	out, err := execute(t, "predict", writePhoto(t), "-c", cfgPath, "--json")
	if err == nil {
		t.Fatal("expected an error without a model")
	}

	var got predictOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Success || len(got.TopPredictions) != 0 {
		t.Errorf("unexpected result %+v", got.Result)
	}
}

func TestPredictCommand_Remote(t *testing.T) {
	ts := remoteServer(t, "Pizza", "Ramen")

	out, err := execute(t, "predict", writePhoto(t), "--server", ts.URL, "--goal", "weight_loss", "--slot", "snack", "--json")
	if err != nil {
		t.Fatalf("predict: %v\n%s", err, out)
	}

	var got predictOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !got.Success || len(got.TopPredictions) != 2 {
		t.Errorf("unexpected result %+v", got.Result)
	}
	if got.Budget == nil {
		t.Error("expected budget evaluation from server")
	}
}

func TestModelCommand(t *testing.T) {
	cfgPath, artifactsDir, _ := writeConfig(t)
	saveModel(t, artifactsDir, "Pizza", "Ramen", "Salad")

	out, err := execute(t, "model", "-c", cfgPath, "--json")
	if err != nil {
		t.Fatalf("model: %v", err)
	}

	var info artifact.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !info.Exists || info.Manifest == nil || info.Manifest.NumClasses != 3 {
		t.Errorf("unexpected info %+v", info)
	}
}
