package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/errors"
	"github.com/kbukum/parstream/logger"
)

type token string

func (t token) Size() int { return len(t) }

const waitTimeout = 2 * time.Second

func newTestStream(t *testing.T, concurrency, buffer int64, opts ...Option) (*Stream[token], *channel.Channel[token]) {
	t.Helper()
	out := channel.New[token]()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	s, err := New(t.Context(), out, concurrency, buffer, opts...)
	require.NoError(t, err)
	return s, out
}

// drainOutput reads until a terminal condition and returns what it saw.
func drainOutput(t *testing.T, out *channel.Channel[token]) ([]token, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	var got []token
	for {
		v, err := out.Next(ctx)
		if err != nil {
			require.NotErrorIs(t, err, context.DeadlineExceeded, "output stalled after %v", got)
			return got, err
		}
		got = append(got, v)
	}
}

func createAsync(s *Stream[token]) <-chan *Fragment[token] {
	ch := make(chan *Fragment[token], 1)
	go func() {
		f, err := s.CreateFragment(context.Background())
		if err == nil {
			ch <- f
		}
	}()
	return ch
}

func assertBlocked[V any](t *testing.T, ch <-chan V) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("expected operation to still be blocked")
	case <-time.After(30 * time.Millisecond):
	}
}

func receive[V any](t *testing.T, ch <-chan V) V {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting")
		var zero V
		return zero
	}
}

func recoverAppError(fn func()) (err *errors.AppError) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(*errors.AppError)
		}
	}()
	fn()
	return nil
}

func TestNew_InvalidArguments(t *testing.T) {
	tests := []struct {
		name        string
		output      *channel.Channel[token]
		concurrency int64
		buffer      int64
		opts        []Option
		code        errors.ErrorCode
		field       string
	}{
		{"zero concurrency", channel.New[token](), 0, 1, nil, errors.ErrCodeInvalidConfig, "concurrency_limit"},
		{"negative buffer", channel.New[token](), 1, -1, nil, errors.ErrCodeInvalidConfig, "buffer_limit"},
		{"negative threshold", channel.New[token](), 1, 1, []Option{WithFairnessThreshold(-1)}, errors.ErrCodeInvalidConfig, "fairness_threshold"},
		{"nil output", nil, 1, 1, nil, errors.ErrCodeInvalidInput, "output"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(t.Context(), tc.output, tc.concurrency, tc.buffer, tc.opts...)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.IsCode(err, tc.code), "got %v", err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestStream_ScenarioA_SingleSlotHandsOver(t *testing.T) {
	s, out := newTestStream(t, 1, 1)

	f1, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f1.Send("a")
	f1.Send("b")

	pending := createAsync(s)
	assertBlocked(t, pending)

	f1.Finish()
	f2 := receive(t, pending)
	f2.Send("c")
	f2.Finish()
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"a", "b", "c"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)

	receive(t, s.Done())
	assert.NoError(t, s.Err())
}

func TestStream_ScenarioB_EmptyEarlierFragmentHoldsOutput(t *testing.T) {
	s, out := newTestStream(t, 2, 2)

	f1, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f2, err := s.CreateFragment(context.Background())
	require.NoError(t, err)

	f2.Send("x")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, out.Len(), "nothing may pass an unfinished earlier fragment")

	f1.Finish()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	v, err := out.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, token("x"), v)

	f2.Finish()
	s.Finish()
	got, err := drainOutput(t, out)
	assert.Empty(t, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestStream_ScenarioC_FragmentErrorKillsStream(t *testing.T) {
	s, out := newTestStream(t, 2, 2)
	condA := stderrors.New("condition A")

	f1, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f1.SendError(condA)
	assert.Equal(t, Errored, f1.State())

	got, err := drainOutput(t, out)
	assert.Empty(t, got)
	assert.Same(t, condA, err, "condition must be forwarded unmodified")

	receive(t, s.Done())
	assert.Same(t, condA, s.Err())

	// Later fragments are admitted but never drain.
	f2, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f2.Send("late")
	f2.Finish()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, out.Len())
	_, err = out.Next(context.Background())
	assert.Same(t, condA, err)
}

func TestStream_OrderFollowsCreationNotCompletion(t *testing.T) {
	tests := []struct {
		name      string
		fragments [][]token
	}{
		{"single", [][]token{{"a", "b", "c"}}},
		{"several", [][]token{{"a"}, {"b", "c"}, {"d", "e", "f"}}},
		{"with empty", [][]token{{}, {"x"}, {}, {"y", "z"}}},
		{"many", [][]token{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}, {"6"}, {"7"}, {"8"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := int64(len(tc.fragments))
			s, out := newTestStream(t, n, n)

			frags := make([]*Fragment[token], len(tc.fragments))
			for i := range frags {
				f, err := s.CreateFragment(context.Background())
				require.NoError(t, err)
				assert.Equal(t, uint64(i), f.Seq())
				frags[i] = f
			}

			// Producers run concurrently and later fragments finish first.
			var wg sync.WaitGroup
			for i := len(frags) - 1; i >= 0; i-- {
				wg.Add(1)
				go func(f *Fragment[token], items []token, delay time.Duration) {
					defer wg.Done()
					time.Sleep(delay)
					for _, it := range items {
						f.Send(it)
					}
					f.Finish()
				}(frags[i], tc.fragments[i], time.Duration(len(frags)-i)*2*time.Millisecond)
			}
			wg.Wait()
			s.Finish()

			var want []token
			for _, items := range tc.fragments {
				want = append(want, items...)
			}
			got, err := drainOutput(t, out)
			assert.Equal(t, want, got)
			assert.ErrorIs(t, err, channel.ErrEndOfStream)
		})
	}
}

func TestStream_AdmissionBound(t *testing.T) {
	const limit = 3
	s, out := newTestStream(t, limit, 100)

	var open, maxOpen atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := s.CreateFragment(context.Background())
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			n := open.Add(1)
			for {
				cur := maxOpen.Load()
				if n <= cur || maxOpen.CompareAndSwap(cur, n) {
					break
				}
			}
			assert.LessOrEqual(t, s.Stats().OpenFragments, int64(limit))
			f.Send(token(fmt.Sprint(i)))
			time.Sleep(time.Millisecond)
			open.Add(-1)
			f.Finish()
		}(i)
	}
	wg.Wait()
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Len(t, got, 20)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
	assert.LessOrEqual(t, maxOpen.Load(), int64(limit))
	assert.Equal(t, int64(0), s.Stats().OpenFragments)
}

func TestStream_SendErrorFirstWins(t *testing.T) {
	s, out := newTestStream(t, 4, 4)
	first := stderrors.New("first")
	second := stderrors.New("second")

	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)

	s.SendError(first)
	s.SendError(second)
	s.SendError(nil)
	s.Finish()

	// The condition waits behind the earlier fragment.
	assert.Equal(t, 0, out.Len())
	assert.False(t, out.Terminated())

	f.Send("before")
	f.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"before"}, got)
	assert.Same(t, first, err)
	receive(t, s.Done())
	assert.Same(t, first, s.Err())
}

func TestStream_SendErrorPrecedesLaterFragments(t *testing.T) {
	boom := stderrors.New("boom")
	for i := 0; i < 50; i++ {
		s, out := newTestStream(t, 4, 4)
		s.SendError(boom)

		f, err := s.CreateFragment(context.Background())
		require.NoError(t, err)
		f.Send("late")
		f.Finish()

		got, err := drainOutput(t, out)
		require.Empty(t, got, "iteration %d", i)
		require.Same(t, boom, err, "iteration %d", i)
	}
}

func TestStream_FinishPrecedesLaterFragments(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, out := newTestStream(t, 4, 4)
		s.Finish()

		f, err := s.CreateFragment(context.Background())
		require.NoError(t, err)
		f.Send("late")
		f.Finish()

		got, err := drainOutput(t, out)
		require.Empty(t, got, "iteration %d", i)
		require.ErrorIs(t, err, channel.ErrEndOfStream, "iteration %d", i)
	}
}

func TestStream_SendErrorKeepsPositionWhenGateFull(t *testing.T) {
	s, out := newTestStream(t, 1, 1)
	boom := stderrors.New("boom")

	f0, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f0.Send("early")

	// The gate is full, so the error fragment waits for a permit but its
	// position is already taken.
	s.SendError(boom)
	late := createAsync(s)
	f0.Finish()

	f1 := receive(t, late)
	f1.Send("late")
	f1.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"early"}, got)
	assert.Same(t, boom, err)
	assert.Equal(t, int64(3), s.Stats().FragmentsCreated)
}

func TestStream_SendErrorNilIgnored(t *testing.T) {
	s, out := newTestStream(t, 1, 1)
	s.SendError(nil)
	s.Finish()

	_, err := drainOutput(t, out)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestFragment_FinishReleasesBeforeDrain(t *testing.T) {
	s, out := newTestStream(t, 2, 2)

	// f0 stays open, so the flush loop cannot reach f1.
	f0, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f1, err := s.CreateFragment(context.Background())
	require.NoError(t, err)

	pending := createAsync(s)
	assertBlocked(t, pending)

	f1.Send("one")
	f1.Finish()
	f2 := receive(t, pending)
	assert.Equal(t, int64(0), s.Stats().FragmentsDrained, "f1 must not have been reclaimed yet")

	f2.Send("two")
	f2.Finish()
	f0.Send("zero")
	f0.Finish()
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"zero", "one", "two"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestFragment_DoubleReleaseIsNoop(t *testing.T) {
	s, out := newTestStream(t, 1, 1)

	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Release())
	assert.False(t, f.Release())
	assert.Equal(t, int64(0), s.Stats().OpenFragments)

	// Released early but still open: the producer keeps writing.
	f.Send("still-open")
	g, ok := s.TryCreateFragment()
	require.True(t, ok, "capacity must be free after an early release")

	f.Finish()
	g.Finish()
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"still-open"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)

	stats := s.Stats()
	assert.Equal(t, int64(0), stats.OpenFragments)
	assert.Equal(t, int64(0), stats.WeightInUse)
	assert.Equal(t, stats.FragmentsCreated, stats.FragmentsDrained+1, "terminal fragment is not drained")
}

func TestFragment_ContractViolationsPanic(t *testing.T) {
	tests := []struct {
		name  string
		close func(f *Fragment[token])
		after func(f *Fragment[token])
		op    string
	}{
		{"send after finish", (*Fragment[token]).Finish, func(f *Fragment[token]) { f.Send("x") }, "send"},
		{"finish twice", (*Fragment[token]).Finish, (*Fragment[token]).Finish, "finish"},
		{"error after finish", (*Fragment[token]).Finish, func(f *Fragment[token]) { f.SendError(stderrors.New("x")) }, "send_error"},
		{"send after error", func(f *Fragment[token]) { f.SendError(stderrors.New("boom")) }, func(f *Fragment[token]) { f.Send("x") }, "send"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestStream(t, 1, 1)
			f, err := s.CreateFragment(context.Background())
			require.NoError(t, err)

			tc.close(f)
			appErr := recoverAppError(func() { tc.after(f) })
			require.NotNil(t, appErr, "expected a FRAGMENT_CLOSED panic")
			assert.Equal(t, errors.ErrCodeFragmentClosed, appErr.Code)
			assert.Equal(t, tc.op, appErr.Details["operation"])
			assert.Equal(t, f.Seq(), appErr.Details["fragment"])
		})
	}
}

func TestFragment_SendErrorNilFinishes(t *testing.T) {
	s, out := newTestStream(t, 1, 1)
	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f.Send("a")
	f.SendError(nil)
	assert.Equal(t, Finished, f.State())
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"a"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestCreateFragment_CancelledWaitHoldsNothing(t *testing.T) {
	s, _ := newTestStream(t, 1, 1)
	held, err := s.CreateFragment(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	f, err := s.CreateFragment(ctx)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), s.Stats().OpenFragments)
	assert.Equal(t, int64(1), s.Stats().FragmentsCreated)

	held.Finish()
	_, ok := s.TryCreateFragment()
	assert.True(t, ok)
}

func TestStream_ContextCancelForwarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := channel.New[token]()
	s, err := New(ctx, out, 1, 1, WithLogger(logger.Nop()))
	require.NoError(t, err)

	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f.Send("a")
	f.Finish()

	v, err := out.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token("a"), v)

	cancel()
	_, err = drainOutput(t, out)
	assert.ErrorIs(t, err, context.Canceled)
	receive(t, s.Done())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestStream_OutputClosedByConsumer(t *testing.T) {
	s, out := newTestStream(t, 1, 1)
	out.Close()

	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f.Send("dropped")
	f.Finish()

	receive(t, s.Done())
	assert.True(t, errors.IsCode(s.Err(), errors.ErrCodeStreamClosed))
}

func TestStream_WeightedFragments(t *testing.T) {
	s, out := newTestStream(t, 4, 4)

	heavy, err := s.CreateFragment(context.Background(), WithWeight(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Stats().WeightInUse)

	_, ok := s.TryCreateFragment(WithWeight(2))
	assert.False(t, ok)

	light, ok := s.TryCreateFragment(WithWeight(1))
	require.True(t, ok)

	_, err = s.CreateFragment(context.Background(), WithWeight(5))
	assert.True(t, errors.IsCode(err, errors.ErrCodeAdmissionRejected))

	heavy.Send("h")
	heavy.Finish()
	light.Send("l")
	light.Finish()
	s.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"h", "l"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestStream_FinishWaitsForEarlierFragments(t *testing.T) {
	s, out := newTestStream(t, 2, 2)
	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)

	s.Finish()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, out.Ready())

	f.Send("z")
	f.Finish()

	got, err := drainOutput(t, out)
	assert.Equal(t, []token{"z"}, got)
	assert.ErrorIs(t, err, channel.ErrEndOfStream)
}

func TestStream_Stats(t *testing.T) {
	s, out := newTestStream(t, 2, 2, WithFairnessThreshold(0))
	f, err := s.CreateFragment(context.Background())
	require.NoError(t, err)
	f.Send("ab")
	f.Send("cd")
	f.Send("ef")
	f.Finish()
	s.Finish()

	_, err = drainOutput(t, out)
	require.ErrorIs(t, err, channel.ErrEndOfStream)
	receive(t, s.Done())

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.FragmentsCreated)
	assert.Equal(t, int64(1), stats.FragmentsDrained)
	assert.Equal(t, int64(3), stats.ItemsFlushed)
	assert.NotEmpty(t, s.ID())
}

func TestNewFromConfig(t *testing.T) {
	out := channel.New[token]()
	var yields atomic.Int64
	s, err := NewFromConfig(t.Context(), out, Config{ConcurrencyLimit: 2, YieldEveryItem: true},
		WithLogger(logger.Nop()),
		WithYielder(YieldFunc(func() { yields.Add(1) })),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.threshold)
	assert.Equal(t, int64(2), s.gate.BufferLimit())

	_, err = NewFromConfig(t.Context(), out, Config{ConcurrencyLimit: -1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, int64(16), cfg.ConcurrencyLimit)
	assert.Equal(t, int64(16), cfg.BufferLimit)
	assert.Equal(t, DefaultFairnessThreshold, cfg.Threshold())
	assert.NoError(t, cfg.Validate())

	cfg.YieldEveryItem = true
	assert.Equal(t, int64(0), cfg.Threshold())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "unknown", State(9).String())
}
