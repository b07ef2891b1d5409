package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tiffchow214/medicine-companion/internal/llm"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, reply string, captured *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestPersonalizedReminderRequestShape(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := newChatServer(t, "Hey Tiff, it's time to take your morning Aspirin. You're doing great.", &got)
	defer server.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	message, err := client.PersonalizedReminder(context.Background(), llm.ReminderPrompt{
		UserName:       "Tiff",
		MedicationName: "Aspirin",
		Purpose:        "pain relief",
		TimeOfDay:      "morning",
		Encouragement:  "You're doing the right thing for your health.",
		CurrentStreak:  5,
		MissedLastWeek: 1,
	})
	if err != nil {
		t.Fatalf("PersonalizedReminder() error = %v", err)
	}
	if !strings.Contains(message, "Aspirin") {
		t.Fatalf("unexpected message %q", message)
	}

	if got.Model != llm.DefaultReminderModel {
		t.Fatalf("model = %q, want %q", got.Model, llm.DefaultReminderModel)
	}
	if got.Temperature != 0.6 {
		t.Fatalf("temperature = %v, want 0.6", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected message roles: %+v", got.Messages)
	}
	user := got.Messages[1].Content
	for _, want := range []string{"Name: Tiff", "Medication: Aspirin", "Purpose: pain relief", "morning", "5", "You're doing the right thing"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
	if !strings.Contains(got.Messages[0].Content, "exactly two short sentences") {
		t.Fatalf("system prompt changed:\n%s", got.Messages[0].Content)
	}
}

func TestPersonalizedReminderDefaultsUnknownPurpose(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := newChatServer(t, "Take your Aspirin.", &got)
	defer server.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.PersonalizedReminder(context.Background(), llm.ReminderPrompt{
		UserName: "Tiff", MedicationName: "Aspirin",
	}); err != nil {
		t.Fatalf("PersonalizedReminder() error = %v", err)
	}
	if !strings.Contains(got.Messages[1].Content, "Purpose: unknown") {
		t.Fatalf("expected unknown purpose default:\n%s", got.Messages[1].Content)
	}
}

func TestChatRequestShape(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := newChatServer(t, "Aspirin relieves pain.", &got)
	defer server.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	reply, err := client.Chat(context.Background(), "What is aspirin for?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "Aspirin relieves pain." {
		t.Fatalf("reply = %q", reply)
	}

	if got.Model != llm.DefaultChatModel {
		t.Fatalf("model = %q, want %q", got.Model, llm.DefaultChatModel)
	}
	if got.Temperature != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", got.Temperature)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestChatEmptyReply(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client, err := llm.NewClient(llm.Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Chat(context.Background(), "hello"); err == nil {
		t.Fatalf("expected an error for empty choices")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := llm.NewClient(llm.Config{}); err == nil {
		t.Fatalf("expected an error without an api key")
	}
}
