package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoke_Success(t *testing.T) {
	var gotPath string
	var gotReq Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Ack{Success: true, Message: "accepted"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "https://leadflow.example.com")
	ack, err := client.Invoke(context.Background(), "validate", "list-1", "job-1")
	require.NoError(t, err)

	assert.True(t, ack.Success)
	assert.Equal(t, "accepted", ack.Message)
	assert.Equal(t, "/functions/validate", gotPath)
	assert.Equal(t, "list-1", gotReq.ListID)
	assert.Equal(t, "job-1", gotReq.JobID)
	assert.Equal(t, "https://leadflow.example.com/api/ingest/jobs/job-1", gotReq.CallbackURL)
}

func TestInvoke_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Ack{Success: false, Message: "No valid leads"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://localhost:8085")
	ack, err := client.Invoke(context.Background(), "validate", "list-1", "job-1")
	require.NoError(t, err, "a parseable rejection is not a transport error")
	assert.False(t, ack.Success)
	assert.Equal(t, "No valid leads", ack.Message)
}

func TestInvoke_ParseableErrorBody(t *testing.T) {
	// Some function hosts return the acknowledgment with a non-2xx code.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(Ack{Success: false, Message: "list is empty"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://localhost:8085")
	ack, err := client.Invoke(context.Background(), "enrich", "list-1", "job-1")
	require.NoError(t, err)
	assert.False(t, ack.Success)
}

func TestInvoke_UnparseableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://localhost:8085")
	_, err := client.Invoke(context.Background(), "sync", "list-1", "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestInvoke_NetworkError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "http://localhost:8085")
	_, err := client.Invoke(context.Background(), "validate", "list-1", "job-1")
	assert.Error(t, err)
}

func TestInvoke_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("http://127.0.0.1:1", "http://localhost:8085")
	_, err := client.Invoke(ctx, "validate", "list-1", "job-1")
	assert.Error(t, err)
}
