package haiku_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johncui/haiku/pkg/haiku"
	"github.com/johncui/haiku/pkg/memory"
	"github.com/johncui/haiku/pkg/model"
	"github.com/johncui/haiku/pkg/provider/mock"
)

// poet writes "haiku of <subject>" and, when asked to recall, repeats the
// latest assistant turn it was shown.
func poet() *mock.Provider {
	return &mock.Provider{CompleteFn: func(_ context.Context, req model.CompletionRequest) (string, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if last == haiku.RecallPrompt {
			for i := len(req.Messages) - 1; i >= 0; i-- {
				if req.Messages[i].Role == model.RoleAssistant {
					return req.Messages[i].Content, nil
				}
			}
			return "I do not remember", nil
		}
		subject := strings.TrimPrefix(last, "Write a haiku about ")
		subject = strings.TrimSuffix(strings.TrimSuffix(subject, ", and store it in memory."), ".")
		return "haiku of " + subject, nil
	}}
}

func newService(t *testing.T, p model.Provider, store model.SessionStore) *haiku.Service {
	t.Helper()
	svc, err := haiku.New(haiku.Options{
		Provider:     p,
		ProviderName: "stub",
		Store:        store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return svc
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := haiku.New(haiku.Options{})
	assert.Error(t, err)
}

func TestGenerate_Stateless(t *testing.T) {
	var got model.CompletionRequest
	p := &mock.Provider{CompleteFn: func(_ context.Context, req model.CompletionRequest) (string, error) {
		got = req
		return "an old silent pond", nil
	}}
	svc := newService(t, p, nil)

	text, err := svc.Generate(context.Background(), "frog")
	require.NoError(t, err)
	assert.Equal(t, "an old silent pond", text)
	assert.Equal(t, haiku.SystemPrompt, got.SystemPrompt)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Write a haiku about frog.", got.Messages[0].Content)
}

func TestGenerate_NonEmptyForAnySubject(t *testing.T) {
	svc := newService(t, poet(), nil)
	for _, subject := range []string{"cat", "samurai", "a very long subject with spaces", "東京"} {
		text, err := svc.Generate(context.Background(), subject)
		require.NoError(t, err)
		assert.NotEmpty(t, text)
	}
}

func TestGenerate_BlankSubject(t *testing.T) {
	svc := newService(t, poet(), nil)
	_, err := svc.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, model.ErrEmptySubject)
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("upstream 503")
	p := &mock.Provider{CompleteFn: func(context.Context, model.CompletionRequest) (string, error) {
		return "", boom
	}}
	svc := newService(t, p, nil)

	_, err := svc.Generate(context.Background(), "cat")
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "stub", perr.Provider)
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_EmptyCompletionIsProviderError(t *testing.T) {
	p := &mock.Provider{CompleteFn: func(context.Context, model.CompletionRequest) (string, error) {
		return "  \n", nil
	}}
	svc := newService(t, p, nil)

	_, err := svc.Generate(context.Background(), "cat")
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, model.ErrEmptyCompletion)
}

func TestGenerate_Timeout(t *testing.T) {
	p := &mock.Provider{CompleteFn: func(ctx context.Context, _ model.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	svc, err := haiku.New(haiku.Options{
		Provider: p,
		Timeout:  10 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "cat")
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateFor_ThenRecall(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionBuffer(0)
	svc := newService(t, poet(), store)

	written, err := svc.GenerateFor(ctx, haiku.DefaultSession, "cat")
	require.NoError(t, err)

	recalled, err := svc.Recall(ctx, haiku.DefaultSession)
	require.NoError(t, err)
	assert.Equal(t, written, recalled)

	history, err := store.History(ctx, haiku.DefaultSession, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "cat", history[0].Subject)
	assert.Equal(t, "Write a haiku about cat, and store it in memory.", history[0].Prompt)
	assert.Equal(t, written, history[0].Response)
}

func TestGenerateFor_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, poet(), memory.NewSessionBuffer(0))

	_, err := svc.GenerateFor(ctx, "s", "sun")
	require.NoError(t, err)
	moon, err := svc.GenerateFor(ctx, "s", "moon")
	require.NoError(t, err)

	recalled, err := svc.Recall(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, moon, recalled)
	assert.Equal(t, "haiku of moon", recalled)

	last, err := svc.Last(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "moon", last.Subject)
}

func TestGenerateFor_ReplaysHistory(t *testing.T) {
	ctx := context.Background()
	var seen []model.CompletionRequest
	inner := poet()
	p := &mock.Provider{CompleteFn: func(ctx context.Context, req model.CompletionRequest) (string, error) {
		seen = append(seen, req)
		return inner.Complete(ctx, req)
	}}
	svc := newService(t, p, memory.NewSessionBuffer(0))

	_, err := svc.GenerateFor(ctx, "s", "sun")
	require.NoError(t, err)
	_, err = svc.GenerateFor(ctx, "s", "moon")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Len(t, seen[0].Messages, 1)
	require.Len(t, seen[1].Messages, 3)
	assert.Equal(t, model.RoleUser, seen[1].Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, seen[1].Messages[1].Role)
	assert.Equal(t, "haiku of sun", seen[1].Messages[1].Content)
}

func TestGenerateFor_MemoryWindow(t *testing.T) {
	ctx := context.Background()
	var last model.CompletionRequest
	inner := poet()
	p := &mock.Provider{CompleteFn: func(ctx context.Context, req model.CompletionRequest) (string, error) {
		last = req
		return inner.Complete(ctx, req)
	}}
	store := memory.NewSessionBuffer(0)
	svc, err := haiku.New(haiku.Options{
		Provider:     p,
		Store:        store,
		MemoryWindow: 1,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	for _, s := range []string{"a", "b", "c"} {
		_, err := svc.GenerateFor(ctx, "s", s)
		require.NoError(t, err)
	}
	// one replayed exchange plus the new instruction
	assert.Len(t, last.Messages, 3)

	history, err := svc.History(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestGenerateFor_ProviderErrorStoresNothing(t *testing.T) {
	ctx := context.Background()
	p := &mock.Provider{CompleteFn: func(context.Context, model.CompletionRequest) (string, error) {
		return "", errors.New("rate limited")
	}}
	store := memory.NewSessionBuffer(0)
	svc := newService(t, p, store)

	_, err := svc.GenerateFor(ctx, "s", "cat")
	var perr *model.ProviderError
	require.ErrorAs(t, err, &perr)

	history, err := store.History(ctx, "s", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGenerateFor_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, poet(), memory.NewSessionBuffer(0))

	_, err := svc.GenerateFor(ctx, "alice", "sun")
	require.NoError(t, err)
	_, err = svc.GenerateFor(ctx, "bob", "moon")
	require.NoError(t, err)

	alice, err := svc.Recall(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "haiku of sun", alice)
}

func TestGenerateFor_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionBuffer(0)
	svc := newService(t, poet(), store)

	var wg sync.WaitGroup
	for _, subject := range []string{"sun", "moon"} {
		wg.Add(1)
		go func(subject string) {
			defer wg.Done()
			_, err := svc.GenerateFor(ctx, "s", subject)
			assert.NoError(t, err)
		}(subject)
	}
	wg.Wait()

	history, err := store.History(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	subjects := []string{history[0].Subject, history[1].Subject}
	assert.ElementsMatch(t, []string{"sun", "moon"}, subjects)
}

func TestRecall_AbsentSession(t *testing.T) {
	called := false
	p := &mock.Provider{CompleteFn: func(context.Context, model.CompletionRequest) (string, error) {
		called = true
		return "x", nil
	}}
	svc := newService(t, p, memory.NewSessionBuffer(0))

	_, err := svc.Recall(context.Background(), "never")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	assert.False(t, called)
}

func TestRecall_IsNotStored(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionBuffer(0)
	svc := newService(t, poet(), store)

	_, err := svc.GenerateFor(ctx, "s", "cat")
	require.NoError(t, err)
	_, err = svc.Recall(ctx, "s")
	require.NoError(t, err)

	history, err := store.History(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLastAndHistory_AbsentSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, poet(), memory.NewSessionBuffer(0))

	_, err := svc.Last(ctx, "never")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = svc.History(ctx, "never")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestMemoryOperations_RequireStore(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, poet(), nil)

	_, err := svc.GenerateFor(ctx, "s", "cat")
	assert.Error(t, err)
	_, err = svc.Recall(ctx, "s")
	assert.Error(t, err)
}
