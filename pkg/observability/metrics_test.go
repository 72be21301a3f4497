package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()
	ref := domain.ConversationRef{BotID: "bot-1", SessionID: "s1"}

	hooks.OnEventAppended(ctx, ref, domain.ChatEvent{Origin: domain.OriginUser})
	hooks.OnEventAppended(ctx, ref, domain.ChatEvent{Origin: domain.OriginBot})
	hooks.OnEventAppended(ctx, ref, domain.ChatEvent{Origin: domain.OriginBot})
	hooks.OnFallback(ctx, ref, domain.OpAsk, domain.ErrNetwork)
	hooks.OnRejected(ctx, ref, domain.ErrBusy)
	hooks.OnTransportCall(ctx, &domain.TransportEvent{Operation: domain.OpRespond, Duration: 20 * time.Millisecond})
	hooks.OnTransportCall(ctx, &domain.TransportEvent{Operation: domain.OpRespond, Err: errors.New("x")})
	hooks.OnBusyChanged(ctx, ref, true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `flowchat_events_total{origin="bot"} 2`)
	assert.Contains(t, text, `flowchat_events_total{origin="user"} 1`)
	assert.Contains(t, text, `flowchat_fallbacks_total{operation="ask"} 1`)
	assert.Contains(t, text, `flowchat_rejected_submissions_total{reason="busy"} 1`)
	assert.Contains(t, text, `flowchat_transport_duration_seconds_count{operation="respond",outcome="ok"} 1`)
	assert.Contains(t, text, `flowchat_transport_duration_seconds_count{operation="respond",outcome="error"} 1`)
	assert.Contains(t, text, `flowchat_calls_in_flight 1`)

	n, err := testutil.GatherAndCount(m.Registry(), "flowchat_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRejectionReason(t *testing.T) {
	tests := map[error]string{
		domain.ErrBusy:            "busy",
		domain.ErrEmptyInput:      "empty_input",
		domain.ErrUnknownOption:   "unknown_option",
		domain.ErrNotBranch:       "bad_event",
		errors.New("other thing"): "other",
		nil:                       "none",
	}
	for err, want := range tests {
		assert.Equal(t, want, observability.RejectionReason(err))
	}
}

func TestCombineHooks(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnEventAppended: func(context.Context, domain.ConversationRef, domain.ChatEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{
		OnEventAppended: func(context.Context, domain.ConversationRef, domain.ChatEvent) { calls = append(calls, "b") },
		OnFallback: func(context.Context, domain.ConversationRef, domain.Operation, error) {
			calls = append(calls, "b-fallback")
		},
	}

	combined := observability.CombineHooks(a, domain.LifecycleHooks{}, b)
	combined.OnEventAppended(context.Background(), domain.ConversationRef{}, domain.ChatEvent{})
	combined.OnFallback(context.Background(), domain.ConversationRef{}, domain.OpStart, nil)
	combined.OnPausedChanged(context.Background(), domain.ConversationRef{}, domain.PausedState{})

	assert.Equal(t, []string{"a", "b", "b-fallback"}, calls)
}
