package fanout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"tenant-assistant/internal/domain"
)

func collect(ch <-chan domain.AnswerChunk) []domain.AnswerChunk {
	var got []domain.AnswerChunk
	for c := range ch {
		got = append(got, c)
	}
	return got
}

func TestPublishDeliversInOrder(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("u1.c1")
	defer cancel()

	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "a", Status: domain.StatusInProgress})
	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "b", Status: domain.StatusInProgress})
	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Status: domain.StatusDone})

	got := collect(ch)
	require.Len(t, got, 3)
	require.Equal(t, "a", got[0].Text)
	require.Equal(t, "b", got[1].Text)
	require.Equal(t, domain.StatusDone, got[2].Status)
}

func TestPublishMatchesExactAnswerIDOnly(t *testing.T) {
	r := NewRegistry()
	mine, cancelMine := r.Subscribe("u1.c1")
	defer cancelMine()
	other, cancelOther := r.Subscribe("u1.c2")

	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "a", Status: domain.StatusDone})

	got := collect(mine)
	require.Len(t, got, 1)

	cancelOther()
	require.Empty(t, collect(other))
}

func TestTerminalChunkClosesStream(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("u1.c1")
	defer cancel()

	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Status: domain.StatusDone, IsError: true})

	got := collect(ch)
	require.Len(t, got, 1)
	require.True(t, got[0].IsError)
	require.Zero(t, r.SubscriberCount("u1.c1"))

	// Publishing after DONE reaches nobody; the stream is not restartable.
	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "late", Status: domain.StatusInProgress})
	require.Zero(t, r.SubscriberCount("u1.c1"))
}

func TestCancelReleasesRegistration(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("u1.c1")
	require.Equal(t, 1, r.SubscriberCount("u1.c1"))

	cancel()
	cancel() // idempotent
	require.Zero(t, r.SubscriberCount("u1.c1"))
	require.Empty(t, collect(ch))
}

func TestLateSubscriberSeesOnlyNewChunks(t *testing.T) {
	r := NewRegistry()
	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "early", Status: domain.StatusInProgress})

	ch, cancel := r.Subscribe("u1.c1")
	defer cancel()

	r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: "late", Status: domain.StatusDone})

	got := collect(ch)
	require.Len(t, got, 1)
	require.Equal(t, "late", got[0].Text)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("u1.c1")
	defer cancel()

	for i := 0; i < subscriberBuffer+1; i++ {
		r.Publish(domain.AnswerChunk{AnswerID: "u1.c1", Text: fmt.Sprintf("%d", i), Status: domain.StatusInProgress})
	}

	require.Zero(t, r.SubscriberCount("u1.c1"))
	got := collect(ch)
	require.Len(t, got, subscriberBuffer)
}
