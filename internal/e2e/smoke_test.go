//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	serverOnce  sync.Once
	serverReady bool
)

// liveServer returns the base URL of a running sqlagent server, skipping
// the test when SQLAGENT_BASE_URL is unset.
func liveServer(t *testing.T) string {
	t.Helper()
	baseURL := os.Getenv("SQLAGENT_BASE_URL")
	if baseURL == "" {
		t.Skip("SQLAGENT_BASE_URL not set")
	}

	// Wait for server readiness (up to 30s)
	serverOnce.Do(func() {
		for i := 0; i < 30; i++ {
			resp, err := http.Get(baseURL + "/api/health")
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					serverReady = true
					return
				}
			}
			time.Sleep(1 * time.Second)
		}
	})
	if !serverReady {
		t.Fatalf("server at %s not ready after 30s", baseURL)
	}
	return baseURL
}

type askResponse struct {
	RunID      string `json:"run_id"`
	Answer     string `json:"answer"`
	StopReason string `json:"stop_reason"`
	Steps      []struct {
		Tool        string `json:"tool"`
		Observation string `json:"observation"`
	} `json:"steps"`
}

// ask POSTs a question to the agent and returns the decoded run.
func ask(t *testing.T, baseURL, question string) askResponse {
	t.Helper()

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 180 * time.Second}
	resp, err := client.Post(baseURL+"/api/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/ask: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var out askResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return out
}

func TestServerTables(t *testing.T) {
	baseURL := liveServer(t)
	resp, err := http.Get(baseURL + "/api/tables")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Tables []string `json:"tables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tables) == 0 {
		t.Error("expected at least one table")
	}
}

func TestServerCountMembers(t *testing.T) {
	baseURL := liveServer(t)
	run := ask(t, baseURL, "How many members are there?")
	if run.StopReason != "final_answer" {
		t.Errorf("stop reason = %s", run.StopReason)
	}
	if !strings.Contains(run.Answer, "100") {
		t.Errorf("expected the answer to mention 100, got: %s", run.Answer)
	}
	t.Logf("answer: %.300s (%d steps)", run.Answer, len(run.Steps))
}

func TestServerSchemaQuestion(t *testing.T) {
	baseURL := liveServer(t)
	run := ask(t, baseURL, "What does the final_price column mean?")
	if len(run.Answer) <= 10 {
		t.Errorf("expected meaningful answer (len > 10), got len=%d: %s", len(run.Answer), run.Answer)
	}
	t.Logf("answer: %.300s", run.Answer)
}
