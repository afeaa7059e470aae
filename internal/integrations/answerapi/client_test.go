package answerapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tenant-assistant/internal/domain"
)

type fakeGetter struct {
	vals  map[string]string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.vals[name], nil
}

func testChunk() domain.AnswerChunk {
	return domain.AnswerChunk{AnswerID: "u1.c1", Text: "partial", Status: domain.StatusInProgress}
}

func TestNewClient_Validates(t *testing.T) {
	getter := &fakeGetter{}

	_, err := NewClient(nil, "/assistant", "http://gateway")
	require.Error(t, err)
	_, err = NewClient(getter, " ", "http://gateway")
	require.Error(t, err)
	_, err = NewClient(getter, "/assistant", " ")
	require.Error(t, err)
}

func TestPublishChunk_SendsAuthenticatedRequest(t *testing.T) {
	var gotAuth string
	var gotChunk domain.AnswerChunk
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/internal/v1/chunks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotChunk))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	getter := &fakeGetter{vals: map[string]string{"/assistant/publisher_secret": "worker-secret"}}
	client, err := NewClient(getter, "/assistant", srv.URL)
	require.NoError(t, err)

	require.NoError(t, client.PublishChunk(context.Background(), testChunk()))
	require.Equal(t, "Bearer worker-secret", gotAuth)
	require.Equal(t, testChunk(), gotChunk)

	// The secret is fetched once and reused.
	require.NoError(t, client.PublishChunk(context.Background(), testChunk()))
	require.Equal(t, 2, requests)
	require.Equal(t, 1, getter.calls)
}

func TestPublishChunk_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	getter := &fakeGetter{vals: map[string]string{"/assistant/publisher_secret": "worker-secret"}}
	client, err := NewClient(getter, "/assistant", srv.URL)
	require.NoError(t, err)

	err = client.PublishChunk(context.Background(), testChunk())
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestPublishChunk_SecretLoadFailure(t *testing.T) {
	getter := &fakeGetter{err: errors.New("ssm unavailable")}
	client, err := NewClient(getter, "/assistant", "http://gateway.invalid")
	require.NoError(t, err)

	err = client.PublishChunk(context.Background(), testChunk())
	require.ErrorContains(t, err, "ssm unavailable")
}
