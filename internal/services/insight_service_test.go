package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tides/internal/models"
)

func TestInsightService_Disabled(t *testing.T) {
	var nilService *InsightService
	if nilService.Enabled() || NewInsightService(nil).Enabled() {
		t.Error("Expected service without runner to be disabled")
	}
	if _, err := NewInsightService(nil).Analyze(context.Background(), &models.TideReport{}); !errors.Is(err, ErrInsightsUnavailable) {
		t.Errorf("Expected ErrInsightsUnavailable, got %v", err)
	}
}

func TestChatCompletionsRunner(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"text":"Energy dips after lunch.","confidence":0.6}`}},
			},
		})
	}))
	defer server.Close()

	runner := NewChatCompletionsRunner(server.URL+"/v1/", "key-1", "small-model")
	service := NewInsightService(runner)

	report := models.BuildReport(&models.Tide{Name: "Focus", FlowType: models.FlowTypeDaily}, time.Now())
	result, err := service.Analyze(context.Background(), report)
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if result.Text != "Energy dips after lunch." || result.Confidence != 0.6 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if gotAuth != "Bearer key-1" || gotBody["model"] != "small-model" {
		t.Errorf("Unexpected request: auth=%q body=%v", gotAuth, gotBody)
	}
}

func TestChatCompletionsRunner_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	_, err := NewChatCompletionsRunner(server.URL, "", "m").Run(context.Background(), nil)
	if err == nil {
		t.Error("Expected API error to be returned")
	}
}
