package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/btbroker/internal/accounts"
	"github.com/systmms/btbroker/internal/cache"
	"github.com/systmms/btbroker/internal/pam"
	"github.com/systmms/btbroker/internal/refresh"
	"github.com/systmms/btbroker/tests/fakes"
	"github.com/systmms/btbroker/tests/testutil"
)

func settings() refresh.Settings {
	return refresh.Settings{
		Enabled:      true,
		APIKey:       "key",
		Accounts:     accounts.Options{List: "DB01.sa"},
		PollInterval: time.Millisecond,
	}
}

func newFake() *fakes.FakePAMClient {
	return fakes.NewFakePAMClient().
		AddAccount(1, "DB01", 10, "sa").
		AddAccount(1, "DB01", 11, "reporting").
		ScriptCheckout(1, 10, fakes.CheckoutResponse{RequestID: "100"}).
		ScriptCheckout(1, 11, fakes.CheckoutResponse{RequestID: "101"}).
		ScriptCredential("100", fakes.CredentialResponse{Value: "sa-pw"}).
		ScriptCredential("101", fakes.CredentialResponse{Value: "rep-pw"})
}

func newBroker(t *testing.T, s refresh.Settings, client pam.Client) *refresh.Broker {
	t.Helper()
	b := refresh.New(s, client, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Stop(ctx)
		b.Cache().Close()
	})
	return b
}

func TestStartInactiveMakesNoCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s *refresh.Settings)
	}{
		{name: "disabled", mutate: func(s *refresh.Settings) { s.Enabled = false }},
		{name: "empty_key", mutate: func(s *refresh.Settings) { s.APIKey = "  " }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := settings()
			s.Interval = time.Millisecond
			tt.mutate(&s)
			fake := newFake()
			b := newBroker(t, s, fake)

			require.NoError(t, b.Start(context.Background()))
			time.Sleep(20 * time.Millisecond)

			assert.Empty(t, fake.Calls())
			assert.Equal(t, 0, b.Cache().Len())
			assert.True(t, b.Ready())
			assert.False(t, b.Active())
			_, ran := b.LastCycle()
			assert.False(t, ran)
		})
	}
}

func TestRunCycleWritesSelectedAccountsOnly(t *testing.T) {
	t.Parallel()

	fake := newFake().SetSafe("Dev", pam.SafeItem{
		Title: fakes.Str("App1_DB"), Folder: fakes.Str("Dev"),
		Password: fakes.Str("P1"), Username: fakes.Str("u1"),
	})
	fake.SignInErr = &pam.Error{Op: pam.OpSignIn, StatusCode: 401}

	s := settings()
	s.SafePaths = []string{"Dev"}
	b := newBroker(t, s, fake)

	stats := b.RunCycle(context.Background())

	require.NoError(t, stats.Err)
	assert.Equal(t, map[string]string{
		"bt.acc.DB01.sa":               "sa-pw",
		"bt.safe.Dev.App1_DB.password": "P1",
		"bt.safe.Dev.App1_DB.username": "u1",
	}, b.Cache().Snapshot())
	assert.Equal(t, []string{"1/10"}, fake.Args(pam.OpCheckout))
	assert.Equal(t, 1, stats.Accounts)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.SafeItems)
	assert.Equal(t, 3, stats.Merge.Written)
}

func TestRunCycleAllAccounts(t *testing.T) {
	t.Parallel()

	fake := newFake()
	s := settings()
	s.Accounts = accounts.Options{All: true}
	b := newBroker(t, s, fake)

	b.RunCycle(context.Background())

	assert.Equal(t, "sa-pw", b.Cache().Value("bt.acc.DB01.sa"))
	assert.Equal(t, "rep-pw", b.Cache().Value("bt.acc.db01.REPORTING"))
	assert.Equal(t, 2, fake.CallCount(pam.OpCheckin))
}

func TestRunCycleSkipsAccountsWhenSelectionEmpty(t *testing.T) {
	t.Parallel()

	fake := newFake()
	s := settings()
	s.Accounts = accounts.Options{}
	b := newBroker(t, s, fake)

	b.RunCycle(context.Background())

	assert.Equal(t, 0, fake.CallCount(pam.OpListAccounts))
	assert.Equal(t, 0, fake.CallCount(pam.OpCheckout))
	assert.Equal(t, 1, fake.CallCount(pam.OpSignIn))
}

func TestFailedCheckoutKeepsPriorValue(t *testing.T) {
	t.Parallel()

	fake := newFake()
	b := newBroker(t, settings(), fake)

	b.RunCycle(context.Background())
	require.Equal(t, "sa-pw", b.Cache().Value("bt.acc.DB01.sa"))

	fake.ScriptCheckout(1, 10, fakes.Conflict())
	stats := b.RunCycle(context.Background())

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Merge.Retained)
	assert.Equal(t, "sa-pw", b.Cache().Value("bt.acc.DB01.sa"))
}

func TestFailedCheckoutWithoutPriorValueWritesSentinel(t *testing.T) {
	t.Parallel()

	fake := newFake()
	fake.ScriptCredential("100", fakes.CredentialResponse{Err: &pam.Error{Op: pam.OpCredential, StatusCode: 404}})
	b := newBroker(t, settings(), fake)

	b.RunCycle(context.Background())

	assert.Equal(t, cache.SentinelCredentialFailed, b.Cache().Value("bt.acc.DB01.sa"))
	assert.Equal(t, 1, fake.CallCount(pam.OpCheckin))

	fake.ScriptCredential("100", fakes.CredentialResponse{Value: "recovered"})
	b.RunCycle(context.Background())
	assert.Equal(t, "recovered", b.Cache().Value("bt.acc.DB01.sa"))
}

func TestAccountListingFailureStillFetchesSafe(t *testing.T) {
	t.Parallel()

	fake := newFake().SetSafe("Ops", pam.SafeItem{Title: fakes.Str("T"), Password: fakes.Str("x")})
	fake.AccountsErr = fakes.ErrFakeTransport

	s := settings()
	s.SafePaths = []string{"Ops"}
	b := newBroker(t, s, fake)

	stats := b.RunCycle(context.Background())

	assert.Error(t, stats.Err)
	assert.Equal(t, "x", b.Cache().Value("bt.safe.Ops.T.password"))
	assert.Equal(t, 0, fake.CallCount(pam.OpCheckout))
}

func TestPanickingCycleLeavesCacheUnchanged(t *testing.T) {
	t.Parallel()

	fake := newFake().SetSafe("Ops", pam.SafeItem{Title: fakes.Str("T"), Password: fakes.Str("x")})
	s := settings()
	s.SafePaths = []string{"Ops"}
	b := newBroker(t, s, fake)

	b.RunCycle(context.Background())
	before := b.Cache().Snapshot()

	var boom atomic.Bool
	boom.Store(true)
	fake.OnCall = func(op string) {
		if op == pam.OpSafe && boom.Load() {
			panic("bad safe response")
		}
	}
	fake.ScriptCredential("100", fakes.CredentialResponse{Value: "new-pw"})

	stats := b.RunCycle(context.Background())

	assert.ErrorContains(t, stats.Err, "bad safe response")
	assert.Equal(t, before, b.Cache().Snapshot())

	last, ok := b.LastCycle()
	require.True(t, ok)
	assert.Equal(t, stats.ID, last.ID)
}

func TestLastCycle(t *testing.T) {
	t.Parallel()

	b := newBroker(t, settings(), newFake())

	_, ok := b.LastCycle()
	assert.False(t, ok)

	stats := b.RunCycle(context.Background())
	last, ok := b.LastCycle()
	require.True(t, ok)
	assert.Equal(t, stats, last)

	_, err := uuid.Parse(last.ID)
	assert.NoError(t, err)
	assert.False(t, last.StartedAt.IsZero())
}

// signIns records when each cycle started.
type signIns struct {
	mu    sync.Mutex
	times []time.Time
}

func (s *signIns) hook(op string) {
	if op != pam.OpSignIn {
		return
	}
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
}

func (s *signIns) snapshot() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

func TestStartWithZeroIntervalRunsOnce(t *testing.T) {
	t.Parallel()

	fake := newFake()
	rec := &signIns{}
	fake.OnCall = rec.hook

	b := newBroker(t, settings(), fake)
	require.NoError(t, b.Start(context.Background()))

	assert.True(t, b.Ready())
	assert.Equal(t, "sa-pw", b.Cache().Value("bt.acc.DB01.sa"))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
	assert.NoError(t, b.Stop(context.Background()))
}

func TestStartSchedulesAtInterval(t *testing.T) {
	t.Parallel()

	const interval = 40 * time.Millisecond

	fake := newFake()
	rec := &signIns{}
	fake.OnCall = rec.hook

	s := settings()
	s.Interval = interval
	b := newBroker(t, s, fake)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	assert.Len(t, rec.snapshot(), 1, "initial cycle runs synchronously")

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	times := rec.snapshot()
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), interval)

	assert.ErrorIs(t, b.Start(context.Background()), refresh.ErrAlreadyStarted)
}

func TestCyclesDoNotOverlap(t *testing.T) {
	t.Parallel()

	fake := newFake().SetSafe("Ops", pam.SafeItem{Title: fakes.Str("T"), Password: fakes.Str("x")})
	fake.OnCall = func(op string) {
		if op == pam.OpSignIn {
			time.Sleep(5 * time.Millisecond)
		}
	}

	s := settings()
	s.SafePaths = []string{"Ops"}
	b := newBroker(t, s, fake)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RunCycle(context.Background())
		}()
	}
	wg.Wait()

	var ops []string
	for _, c := range fake.Calls() {
		if c.Op == pam.OpSignIn || c.Op == pam.OpSafe {
			ops = append(ops, c.Op)
		}
	}
	require.Len(t, ops, 8)
	for i := 0; i < len(ops); i += 2 {
		assert.Equal(t, []string{pam.OpSignIn, pam.OpSafe}, ops[i:i+2])
	}
}

func TestStopIsBoundedByContext(t *testing.T) {
	t.Parallel()

	fake := newFake()
	release := make(chan struct{})
	var cycles atomic.Int32
	entered := make(chan struct{}, 1)
	fake.OnCall = func(op string) {
		if op != pam.OpSignIn {
			return
		}
		if cycles.Add(1) == 2 {
			entered <- struct{}{}
			<-release
		}
	}

	s := settings()
	s.Interval = 10 * time.Millisecond
	b := refresh.New(s, fake, nil)
	require.NoError(t, b.Start(context.Background()))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("second cycle never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Stop(ctx), context.DeadlineExceeded)

	close(release)

	// The in-flight cycle still completes and releases its request.
	require.Eventually(t, func() bool {
		last, ok := b.LastCycle()
		return ok && last.Succeeded == 1 && fake.CallCount(pam.OpCheckin) == 2
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), cycles.Load(), "no cycle after Stop")
	b.Cache().Close()
}

func TestCycleLogsNoSecrets(t *testing.T) {
	t.Parallel()

	logger, logs := testutil.NewTestLogger(t, true)
	fake := newFake().SetSafe("Ops", pam.SafeItem{Title: fakes.Str("T"), Password: fakes.Str("safe-pw-123")})

	s := settings()
	s.SafePaths = []string{"Ops"}
	b := refresh.New(s, fake, logger)
	t.Cleanup(b.Cache().Close)

	stats := b.RunCycle(context.Background())

	logs.AssertContains(t, "refresh cycle done: 1/1 accounts, 1 safe items")
	logs.AssertContains(t, "["+stats.ID[:8]+"]")
	logs.AssertNotContains(t, "sa-pw")
	logs.AssertNotContains(t, "safe-pw-123")
}
