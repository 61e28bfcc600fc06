package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type captureSender struct {
	mu    sync.Mutex
	codes []string
}

func (c *captureSender) Send(_ context.Context, _ uuid.UUID, _, code string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, code)
	return nil
}

func (c *captureSender) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[len(c.codes)-1]
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, userID uuid.UUID, purpose, code string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, purpose, code, expiresAt)
	return args.Error(0)
}

func newTestService(sender Sender) (*Service, *MemoryStore) {
	st := NewMemoryStore()
	svc := NewService(st, sender, logger.NewNop(), metrics.Nop(), Config{
		TTL:         5 * time.Minute,
		MaxAttempts: 3,
		HashCost:    bcrypt.MinCost,
	})
	return svc, st
}

func wrong(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestIssueAndVerify(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)
	ctx := context.Background()
	userID := uuid.New()
	scope := Scope("wire", userID.String(), "1000.00")

	issued, err := svc.Issue(ctx, userID, "wire", scope)
	require.NoError(t, err)
	code := sender.last()
	assert.Len(t, code, 6)

	require.NoError(t, svc.Verify(ctx, userID, Proof{ChallengeID: issued.ChallengeID, Code: code}, scope))

	err = svc.Verify(ctx, userID, Proof{ChallengeID: issued.ChallengeID, Code: code}, scope)
	assert.ErrorIs(t, err, errors.ErrOTPExpired, "codes are single use")
}

func TestVerifyConcurrentSubmissionsSucceedOnce(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)
	ctx := context.Background()
	userID := uuid.New()
	scope := Scope("wire", userID.String(), "250.00")

	issued, err := svc.Issue(ctx, userID, "wire", scope)
	require.NoError(t, err)
	proof := Proof{ChallengeID: issued.ChallengeID, Code: sender.last()}

	const workers = 16
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- svc.Verify(ctx, userID, proof, scope)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errors.ErrOTPExpired)
	}
	assert.Equal(t, 1, succeeded)
}

func TestMemoryStoreConsumeOnce(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, &Challenge{ID: "c1"}, time.Minute))

	ok, err := st.Consume(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Consume(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAttemptsAreBounded(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)
	ctx := context.Background()
	userID := uuid.New()
	scope := Scope("buy")

	issued, err := svc.Issue(ctx, userID, "trade", scope)
	require.NoError(t, err)
	proof := Proof{ChallengeID: issued.ChallengeID, Code: wrong(sender.last())}

	assert.ErrorIs(t, svc.Verify(ctx, userID, proof, scope), errors.ErrOTPMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, userID, proof, scope), errors.ErrOTPMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, userID, proof, scope), errors.ErrOTPAttemptsExceeded)

	proof.Code = sender.last()
	assert.ErrorIs(t, svc.Verify(ctx, userID, proof, scope), errors.ErrOTPExpired)
}

func TestVerifyRejectsOtherScopeAndUser(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)
	ctx := context.Background()
	userID := uuid.New()
	scope := Scope("wire", "1000.00")

	issued, err := svc.Issue(ctx, userID, "wire", scope)
	require.NoError(t, err)
	proof := Proof{ChallengeID: issued.ChallengeID, Code: sender.last()}

	assert.ErrorIs(t, svc.Verify(ctx, userID, proof, Scope("wire", "9000.00")), errors.ErrOTPScopeMismatch)
	assert.ErrorIs(t, svc.Verify(ctx, uuid.New(), proof, scope), errors.ErrOTPExpired)
	assert.NoError(t, svc.Verify(ctx, userID, proof, scope))
}

func TestVerifyExpired(t *testing.T) {
	sender := &captureSender{}
	svc, _ := newTestService(sender)
	ctx := context.Background()
	userID := uuid.New()

	issued, err := svc.Issue(ctx, userID, "wire", "s")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	err = svc.Verify(ctx, userID, Proof{ChallengeID: issued.ChallengeID, Code: sender.last()}, "s")
	assert.ErrorIs(t, err, errors.ErrOTPExpired)
}

func TestIssueCooldown(t *testing.T) {
	sender := &captureSender{}
	st := NewMemoryStore()
	svc := NewService(st, sender, logger.NewNop(), metrics.Nop(), Config{
		ResendCooldown: time.Minute,
		HashCost:       bcrypt.MinCost,
	})
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Issue(ctx, userID, "wire", "a")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, userID, "wire", "b")
	assert.ErrorIs(t, err, errors.ErrOTPCooldown)

	_, err = svc.Issue(ctx, userID, "trade", "c")
	assert.NoError(t, err, "cooldown is per purpose")

	st.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Issue(ctx, userID, "wire", "b")
	assert.NoError(t, err)
}

func TestIssueDeliveryFailureDiscardsChallenge(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything, mock.Anything, "wire", mock.AnythingOfType("string"), mock.Anything).
		Return(errors.New("smtp down"))
	svc, st := newTestService(sender)

	_, err := svc.Issue(context.Background(), uuid.New(), "wire", "s")

	require.Error(t, err)
	assert.Empty(t, st.challenges)
	sender.AssertExpectations(t)
}

func TestScopeIsStable(t *testing.T) {
	assert.Equal(t, Scope("a", "b"), Scope("a", "b"))
	assert.NotEqual(t, Scope("ab", "c"), Scope("a", "bc"))
}

func TestVerifyEmptyProof(t *testing.T) {
	svc, _ := newTestService(&captureSender{})
	assert.ErrorIs(t, svc.Verify(context.Background(), uuid.New(), Proof{}, "s"), errors.ErrOTPMismatch)
}
