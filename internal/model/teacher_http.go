package model

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// #region http-teacher

// HTTPTeacher reaches a teacher model over a bounded HTTP call. Any transport
// or decode failure degrades to "no data available" rather than an error.
type HTTPTeacher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTeacher creates a teacher client with the given endpoint and call
// timeout. A zero timeout defaults to 30 seconds.
func NewHTTPTeacher(endpoint string, timeout time.Duration) *HTTPTeacher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTeacher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type teacherRequest struct {
	Prompt string `json:"prompt"`
}

type teacherResponse struct {
	Text string `json:"text"`
}

// Complete implements TeacherClient.
func (t *HTTPTeacher) Complete(ctx context.Context, prompt string) (string, bool) {
	body, err := json.Marshal(teacherRequest{Prompt: prompt})
	if err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("[teacher] unreachable: %v", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[teacher] status %d from %s", resp.StatusCode, t.endpoint)
		return "", false
	}

	var decoded teacherResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		log.Printf("[teacher] decode error: %v", err)
		return "", false
	}
	if decoded.Text == "" {
		return "", false
	}
	return decoded.Text, true
}

// #endregion http-teacher
