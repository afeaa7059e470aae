package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tenant-assistant/internal/domain"
)

type mockRelay struct {
	err    error
	events []domain.PromptEvent
}

func (m *mockRelay) Publish(_ context.Context, event domain.PromptEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

type mockStore struct {
	latest   map[string]domain.AnswerChunk
	putErr   error
	getErr   error
	putCalls []domain.AnswerChunk
}

func newMockStore() *mockStore {
	return &mockStore{latest: make(map[string]domain.AnswerChunk)}
}

func (m *mockStore) PutLatestChunk(_ context.Context, chunk domain.AnswerChunk) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.latest[chunk.AnswerID] = chunk
	m.putCalls = append(m.putCalls, chunk)
	return nil
}

func (m *mockStore) GetLatestChunk(_ context.Context, answerID string) (domain.AnswerChunk, bool, error) {
	if m.getErr != nil {
		return domain.AnswerChunk{}, false, m.getErr
	}
	chunk, ok := m.latest[answerID]
	return chunk, ok, nil
}

type mockFanout struct {
	published  []domain.AnswerChunk
	subscribed []string
	cancels    int
}

func (m *mockFanout) Subscribe(answerID string) (<-chan domain.AnswerChunk, func()) {
	m.subscribed = append(m.subscribed, answerID)
	ch := make(chan domain.AnswerChunk)
	return ch, func() { m.cancels++ }
}

func (m *mockFanout) Publish(chunk domain.AnswerChunk) {
	m.published = append(m.published, chunk)
}

func newTestIngress(t *testing.T) (*IngressService, *mockRelay, *mockStore, *mockFanout) {
	t.Helper()
	relay := &mockRelay{}
	store := newMockStore()
	fan := &mockFanout{}
	svc, err := NewIngressService(relay, store, fan, 300)
	require.NoError(t, err)
	return svc, relay, store, fan
}

func claims(subject, tenant string) domain.IdentityClaims {
	return domain.IdentityClaims{SubjectID: subject, TenantID: tenant}
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, code, ucErr.Code)
}

func TestNewIngressService_ValidatesDependencies(t *testing.T) {
	store := newMockStore()
	fan := &mockFanout{}
	relay := &mockRelay{}

	_, err := NewIngressService(nil, store, fan, 0)
	require.Error(t, err)
	_, err = NewIngressService(relay, nil, fan, 0)
	require.Error(t, err)
	_, err = NewIngressService(relay, store, nil, 0)
	require.Error(t, err)
}

func TestSubmitPrompt_HappyPath(t *testing.T) {
	svc, relay, _, _ := newTestIngress(t)

	err := svc.SubmitPrompt(context.Background(), claims("u1", "tenant2"), "u1.c1", "where is my order?", "")
	require.NoError(t, err)

	require.Len(t, relay.events, 1)
	require.Equal(t, domain.PromptEvent{
		AnswerID: "u1.c1",
		Prompt:   "where is my order?",
		Identity: claims("u1", "tenant2"),
	}, relay.events[0])
}

func TestSubmitPrompt_ForeignAnswerIDUnauthorized(t *testing.T) {
	svc, relay, _, _ := newTestIngress(t)

	err := svc.SubmitPrompt(context.Background(), claims("u2", "tenant2"), "u1.c1", "question", "")
	requireCode(t, err, ErrorUnauthorized)
	require.Empty(t, relay.events, "nothing may reach the relay")
}

func TestSubmitPrompt_MalformedAnswerIDRejectedBeforeRelay(t *testing.T) {
	svc, relay, _, _ := newTestIngress(t)

	err := svc.SubmitPrompt(context.Background(), claims("u1", "tenant2"), "no-separator", "question", "")
	requireCode(t, err, ErrorMalformedKey)
	require.Empty(t, relay.events)
}

func TestSubmitPrompt_ValidatesPrompt(t *testing.T) {
	svc, _, _, _ := newTestIngress(t)
	c := claims("u1", "tenant2")

	err := svc.SubmitPrompt(context.Background(), c, "u1.c1", "   ", "")
	requireCode(t, err, ErrorInvalidInput)

	err = svc.SubmitPrompt(context.Background(), c, "u1.c1", strings.Repeat("x", 301), "")
	requireCode(t, err, ErrorInvalidInput)
}

func TestSubmitPrompt_StartingStatusIsEchoed(t *testing.T) {
	svc, relay, store, fan := newTestIngress(t)

	err := svc.SubmitPrompt(context.Background(), claims("u1", "tenant2"), "u1.c1", "question", domain.StatusStarting)
	require.NoError(t, err)

	require.Len(t, fan.published, 1)
	require.Equal(t, domain.StatusStarting, fan.published[0].Status)
	require.Equal(t, domain.StatusStarting, store.latest["u1.c1"].Status)
	require.Len(t, relay.events, 1)
}

func TestSubmitPrompt_RejectsBogusInitialStatus(t *testing.T) {
	svc, relay, _, _ := newTestIngress(t)

	err := svc.SubmitPrompt(context.Background(), claims("u1", "tenant2"), "u1.c1", "question", domain.StatusDone)
	requireCode(t, err, ErrorInvalidInput)
	require.Empty(t, relay.events)
}

func TestSubmitPrompt_RelayFailureIsInternal(t *testing.T) {
	svc, relay, _, _ := newTestIngress(t)
	relay.err = errors.New("bus unavailable")

	err := svc.SubmitPrompt(context.Background(), claims("u1", "tenant2"), "u1.c1", "question", "")
	requireCode(t, err, ErrorInternal)
}

func TestPublishChunk_StoresThenFansOut(t *testing.T) {
	svc, _, store, fan := newTestIngress(t)

	chunk := domain.AnswerChunk{AnswerID: "u1.c1", Text: "part", Status: domain.StatusInProgress}
	require.NoError(t, svc.PublishChunk(context.Background(), chunk))

	require.Equal(t, chunk, store.latest["u1.c1"])
	require.Equal(t, []domain.AnswerChunk{chunk}, fan.published)
}

func TestPublishChunk_MalformedKeyIsInternal(t *testing.T) {
	svc, _, _, fan := newTestIngress(t)

	err := svc.PublishChunk(context.Background(), domain.AnswerChunk{AnswerID: "bogus", Status: domain.StatusDone})
	requireCode(t, err, ErrorInternal)
	require.Empty(t, fan.published)
}

func TestPublishChunk_InvalidStatusIsInternal(t *testing.T) {
	svc, _, _, _ := newTestIngress(t)

	err := svc.PublishChunk(context.Background(), domain.AnswerChunk{AnswerID: "u1.c1", Status: "WEIRD"})
	requireCode(t, err, ErrorInternal)
}

func TestPublishChunk_StoreFailureSkipsFanout(t *testing.T) {
	svc, _, store, fan := newTestIngress(t)
	store.putErr = errors.New("table unavailable")

	err := svc.PublishChunk(context.Background(), domain.AnswerChunk{AnswerID: "u1.c1", Status: domain.StatusDone})
	requireCode(t, err, ErrorInternal)
	require.Empty(t, fan.published)
}

func TestGetLatestAnswer(t *testing.T) {
	svc, _, store, _ := newTestIngress(t)
	chunk := domain.AnswerChunk{AnswerID: "u1.c1", Text: "latest", Status: domain.StatusInProgress}
	store.latest["u1.c1"] = chunk

	got, found, err := svc.GetLatestAnswer(context.Background(), claims("u1", "tenant2"), "u1.c1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, chunk, got)

	_, found, err = svc.GetLatestAnswer(context.Background(), claims("u1", "tenant2"), "u1.other")
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = svc.GetLatestAnswer(context.Background(), claims("u2", "tenant2"), "u1.c1")
	requireCode(t, err, ErrorUnauthorized)
}

func TestSubscribeToAnswer_OwnershipEnforced(t *testing.T) {
	svc, _, _, fan := newTestIngress(t)

	_, _, err := svc.SubscribeToAnswer(context.Background(), claims("u2", "tenant2"), "u1.c1")
	requireCode(t, err, ErrorUnauthorized)
	require.Empty(t, fan.subscribed, "no chunks may be delivered")

	ch, cancel, err := svc.SubscribeToAnswer(context.Background(), claims("u1", "tenant2"), "u1.c1")
	require.NoError(t, err)
	require.NotNil(t, ch)
	require.Equal(t, []string{"u1.c1"}, fan.subscribed)

	cancel()
	require.Equal(t, 1, fan.cancels)
}
