package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postalhq/postal-go/internal/database"
	"github.com/postalhq/postal-go/postal"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"POSTAL_ADDRESS", "POSTAL_TOKEN", "POSTAL_HISTORY_ENABLED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// mockPostal records the last request body per path and replies with canned
// envelopes.
type mockPostal struct {
	mu         sync.Mutex
	bodies     map[string][]byte
	requestIDs []string
}

func (m *mockPostal) body(path string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bodies[path]
}

func (m *mockPostal) lastRequestID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requestIDs) == 0 {
		return ""
	}
	return m.requestIDs[len(m.requestIDs)-1]
}

func newMockPostal(t *testing.T) (*mockPostal, *httptest.Server) {
	t.Helper()

	m := &mockPostal{bodies: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.bodies[r.URL.Path] = body
		m.requestIDs = append(m.requestIDs, r.Header.Get("X-Request-ID"))
		m.mu.Unlock()

		if r.Header.Get(postal.APIKeyHeader) != "cli-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"status":"error","data":{"code":"InvalidServerAPIKey","message":"bad key"}}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/send/message", "/api/v1/send/raw":
			_, _ = io.WriteString(w, `{"status":"success","time":0.1,"flags":{},"data":{
				"message_id":"abc@postal","messages":{"a@example.com":{"id":42,"token":"tok42"}}}}`)
		case "/api/v1/messages/message":
			_, _ = io.WriteString(w, `{"status":"success","data":{"id":42,"token":"tok42",
				"status":{"status":"Sent","last_delivery_attempt":1700000000,"held":false,"hold_expiry":null}}}`)
		case "/api/v1/messages/deliveries":
			_, _ = io.WriteString(w, `{"status":"success","data":[{"id":1,"status":"Sent","output":"250 OK","timestamp":1700000000}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return m, srv
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	a := newApp(&out)
	a.logOut = io.Discard
	cmd := a.rootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetErr(io.Discard)
	err := a.execute(context.Background(), cmd)
	return out.String(), err
}

func TestCLI_Send(t *testing.T) {
	isolateEnv(t)
	mock, srv := newMockPostal(t)

	attachment := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("hello"), 0o600))

	out, err := runCLI(t, "", "send",
		"--address", srv.URL, "--token", "cli-token",
		"--from", "noreply@example.com",
		"--to", "a@example.com",
		"--subject", "Hello World",
		"--text", "A test message",
		"--header", "X-Campaign=spring",
		"--attach", attachment,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "a@example.com")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "tok42")

	var sent postal.Message
	require.NoError(t, json.Unmarshal(mock.body("/api/v1/send/message"), &sent))
	assert.Equal(t, []string{"a@example.com"}, sent.To)
	assert.Equal(t, "Hello World", sent.Subject)
	assert.Equal(t, "A test message", sent.PlainBody)
	assert.Equal(t, map[string]string{"X-Campaign": "spring"}, sent.Headers)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "notes.txt", sent.Attachments[0].Name)
	assert.Equal(t, "aGVsbG8=", sent.Attachments[0].Data)
}

func TestCLI_SendRequiresBody(t *testing.T) {
	isolateEnv(t)
	_, srv := newMockPostal(t)

	_, err := runCLI(t, "", "send", "--address", srv.URL, "--token", "cli-token", "--to", "a@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text")
}

func TestCLI_SendAPIError(t *testing.T) {
	isolateEnv(t)
	_, srv := newMockPostal(t)

	_, err := runCLI(t, "", "send", "--address", srv.URL, "--token", "wrong",
		"--to", "a@example.com", "--text", "hi")

	apiErr, ok := postal.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "InvalidServerAPIKey", apiErr.Code)
}

func TestCLI_SendRawFromStdin(t *testing.T) {
	isolateEnv(t)
	mock, srv := newMockPostal(t)

	out, err := runCLI(t, "Subject: hi\r\n\r\nbody", "send-raw",
		"--address", srv.URL, "--token", "cli-token",
		"--from", "sender@example.com", "--to", "a@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "tok42")

	var raw postal.RawMessage
	require.NoError(t, json.Unmarshal(mock.body("/api/v1/send/raw"), &raw))
	assert.Equal(t, "sender@example.com", raw.MailFrom)
	assert.Equal(t, "U3ViamVjdDogaGkNCg0KYm9keQ==", raw.Data)
}

func TestCLI_Details(t *testing.T) {
	isolateEnv(t)
	mock, srv := newMockPostal(t)

	out, err := runCLI(t, "", "details", "42", "--expand", "status",
		"--address", srv.URL, "--token", "cli-token")
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":42,"_expansions":["status"]}`, string(mock.body("/api/v1/messages/message")))

	var details postal.MessageDetails
	require.NoError(t, json.Unmarshal([]byte(out), &details))
	require.NotNil(t, details.Status)
	assert.Equal(t, "Sent", details.Status.Status)
	assert.Nil(t, details.Details)
}

func TestCLI_DetailsErrors(t *testing.T) {
	isolateEnv(t)
	_, srv := newMockPostal(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown expansion", args: []string{"details", "42", "--expand", "bogus"}, wantErr: "unknown expansion"},
		{name: "bad id", args: []string{"details", "abc"}, wantErr: "invalid message id"},
		{name: "no id", args: []string{"deliveries"}, wantErr: "expected exactly one message id"},
		{name: "last without history", args: []string{"deliveries", "--last"}, wantErr: "history to be enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--address", srv.URL, "--token", "cli-token")
			_, err := runCLI(t, "", args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCLI_Deliveries(t *testing.T) {
	isolateEnv(t)
	mock, srv := newMockPostal(t)

	out, err := runCLI(t, "", "deliveries", "42", "--address", srv.URL, "--token", "cli-token")
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":42}`, string(mock.body("/api/v1/messages/deliveries")))

	var deliveries []postal.Delivery
	require.NoError(t, json.Unmarshal([]byte(out), &deliveries))
	require.Len(t, deliveries, 1)
	assert.Equal(t, "250 OK", deliveries[0].Output)
}

func TestCLI_MissingCredentials(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "", "deliveries", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
	assert.Contains(t, err.Error(), "token is required")
}

func TestCLI_HistoryDisabled(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history is disabled")
}

func TestCLI_RequestIDInLogs(t *testing.T) {
	isolateEnv(t)
	mock, srv := newMockPostal(t)

	var out, logs bytes.Buffer
	a := newApp(&out)
	a.logOut = &logs
	cmd := a.rootCmd()
	cmd.SetArgs([]string{"send", "--address", srv.URL, "--token", "cli-token",
		"--to", "a@example.com", "--text", "hi", "--log-level", "info", "--log-format", "json"})
	cmd.SetErr(io.Discard)
	require.NoError(t, a.execute(context.Background(), cmd))

	requestID := mock.lastRequestID()
	require.NotEmpty(t, requestID)

	var line struct {
		RequestID string `json:"request_id"`
		Recipient string `json:"recipient"`
		Message   string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &line), logs.String())
	assert.Equal(t, "message accepted", line.Message)
	assert.Equal(t, "a@example.com", line.Recipient)
	assert.Equal(t, requestID, line.RequestID)
}

func TestCLI_ClosesRedisOnFailure(t *testing.T) {
	isolateEnv(t)

	a := newApp(io.Discard)
	a.logOut = io.Discard
	a.redis = &database.Redis{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}
	cmd := a.rootCmd()
	cmd.SetArgs([]string{"deliveries", "42"})
	cmd.SetErr(io.Discard)

	err := a.execute(context.Background(), cmd)
	require.Error(t, err)
	assert.Nil(t, a.redis)
}

func TestParseHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "simple", pairs: []string{"X-A=1", "X-B = two=2"}, want: map[string]string{"X-A": "1", "X-B": " two=2"}},
		{name: "missing equals", pairs: []string{"X-A"}, wantErr: true},
		{name: "empty key", pairs: []string{"=v"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseHeaders(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
