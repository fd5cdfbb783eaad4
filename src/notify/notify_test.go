package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func newTestDiscord(url string, httpClient *http.Client) *Discord {
	restyClient := resty.New()
	restyClient.SetTransport(httpClient.Transport)
	return &Discord{
		webhookURL: url,
		prefix:     "[test]",
		http:       restyClient,
		now:        func() time.Time { return time.Date(2024, 3, 1, 9, 0, 2, 0, time.UTC) },
		loc:        time.UTC,
	}
}

func TestDiscordNotify(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := newTestDiscord(server.URL, server.Client())
	require.True(t, d.Notify(context.Background(), "entered USD_JPY long"))
	require.Equal(t, "[test] 2024-03-01 09:00:02 entered USD_JPY long", got["content"])
}

func TestDiscordNotifyTruncates(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := newTestDiscord(server.URL, server.Client())
	require.True(t, d.Notify(context.Background(), strings.Repeat("円", 3000)))
	require.Len(t, []rune(got["content"]), discordLimit)
	require.True(t, strings.HasSuffix(got["content"], "..."))
}

func TestDiscordNotifyFailureIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Cannot send an empty message"}`))
	}))
	defer server.Close()

	d := newTestDiscord(server.URL, server.Client())
	require.False(t, d.Notify(context.Background(), "x"))

	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	closed := newTestDiscord(gone.URL, gone.Client())
	require.False(t, closed.Notify(context.Background(), "x"))
}

type stubNotifier struct {
	ok   bool
	msgs []string
}

func (s *stubNotifier) Notify(_ context.Context, msg string) bool {
	s.msgs = append(s.msgs, msg)
	return s.ok
}

func TestMulti(t *testing.T) {
	failing := &stubNotifier{}
	working := &stubNotifier{ok: true}

	require.True(t, Multi{failing, nil, working}.Notify(context.Background(), "hello"))
	require.Equal(t, []string{"hello"}, failing.msgs)
	require.Equal(t, []string{"hello"}, working.msgs)

	require.False(t, Multi{failing}.Notify(context.Background(), "again"))
	require.False(t, Multi{}.Notify(context.Background(), "none"))
	require.True(t, Noop{}.Notify(context.Background(), "ignored"))

	require.True(t, Notifyf(context.Background(), working, "%s %d", "lot", 63))
	require.Equal(t, "lot 63", working.msgs[len(working.msgs)-1])
	require.False(t, Notifyf(context.Background(), nil, "x"))
}

func TestRecorderKeepsNewest(t *testing.T) {
	rec := NewRecorder(3)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		rec.Notify(context.Background(), m)
	}
	require.Equal(t, []string{"c", "d", "e"}, rec.Messages())
	require.Empty(t, NewRecorder(0).Messages())
}

func TestNewFromConfig(t *testing.T) {
	sinks, rec := New(Config{RecentMessages: 5}, time.UTC)
	require.Len(t, sinks, 1)
	require.Same(t, rec, sinks[0])

	extra := &stubNotifier{ok: true}
	sinks, _ = New(Config{DiscordWebhookURL: "http://example.invalid/hook"}, nil, extra)
	require.Len(t, sinks, 3)
	require.IsType(t, &Discord{}, sinks[1])
}
