// Package otp issues and checks single-use codes that authorize one pending
// wire transfer or trade. A challenge is bound to a scope derived from the
// operation it authorizes and is deleted on first success.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"strings"
	"time"

	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/bcrypt"
)

// Challenge is the stored half of an issued code. The code itself is never
// persisted.
type Challenge struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Purpose   string    `json:"purpose"`
	Scope     string    `json:"scope"`
	CodeHash  string    `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Proof is what a client presents to authorize an operation.
type Proof struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,numeric"`
}

// Issued is returned to the client; the code travels out of band.
type Issued struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store keeps challenges until they expire.
type Store interface {
	Save(ctx context.Context, c *Challenge, ttl time.Duration) error
	// Load returns errors.ErrOTPExpired when the challenge is gone.
	Load(ctx context.Context, id string) (*Challenge, error)
	// RecordFailure increments and returns the failed attempt count.
	RecordFailure(ctx context.Context, id string, ttl time.Duration) (int, error)
	Delete(ctx context.Context, id string) error
	// Consume removes the challenge and reports whether this call was the
	// one that removed it.
	Consume(ctx context.Context, id string) (bool, error)
	// AcquireCooldown reports false while a previous issue for key is cooling down.
	AcquireCooldown(ctx context.Context, key string, d time.Duration) (bool, error)
}

// Sender delivers a code to the user.
type Sender interface {
	Send(ctx context.Context, userID uuid.UUID, purpose, code string, expiresAt time.Time) error
}

type Config struct {
	TTL            time.Duration
	Digits         int
	MaxAttempts    int
	ResendCooldown time.Duration
	CheckTimeout   time.Duration
	HashCost       int
}

type Service struct {
	store   Store
	sender  Sender
	logger  logger.Logger
	metrics metrics.Recorder
	cfg     Config
	now     func() time.Time
}

func NewService(st Store, sender Sender, log logger.Logger, rec metrics.Recorder, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Digits != 8 {
		cfg.Digits = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Service{store: st, sender: sender, logger: log, metrics: rec, cfg: cfg, now: time.Now}
}

// Scope fingerprints the operation a challenge authorizes. Any change to the
// parts yields a different scope, so a code cannot be replayed against an
// edited request.
func Scope(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Issue creates a challenge for scope and hands the code to the sender.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, purpose, scope string) (*Issued, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	if s.cfg.ResendCooldown > 0 {
		ok, err := s.store.AcquireCooldown(ctx, "otp:cooldown:"+userID.String()+":"+purpose, s.cfg.ResendCooldown)
		if err != nil {
			return nil, errors.FromContext(err)
		}
		if !ok {
			return nil, errors.ErrOTPCooldown
		}
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, errors.Wrap(err, "generate otp")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.HashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash otp")
	}

	now := s.now().UTC()
	ch := &Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Purpose:   purpose,
		Scope:     scope,
		CodeHash:  string(hash),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Save(ctx, ch, s.cfg.TTL); err != nil {
		return nil, errors.FromContext(err)
	}
	if err := s.sender.Send(ctx, userID, purpose, code, ch.ExpiresAt); err != nil {
		_ = s.store.Delete(ctx, ch.ID)
		return nil, errors.Wrap(errors.FromContext(err), "deliver otp")
	}

	s.logger.Info("OTP challenge issued", map[string]interface{}{
		"challenge_id": ch.ID,
		"user_id":      userID.String(),
		"purpose":      purpose,
	})
	return &Issued{ChallengeID: ch.ID, ExpiresAt: ch.ExpiresAt}, nil
}

// Verify consumes the challenge if code matches and it was issued to userID
// for scope. Failed codes count against MaxAttempts; the challenge is
// discarded once they are used up.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, proof Proof, scope string) error {
	err := s.verify(ctx, userID, proof, scope)
	s.metrics.OTPVerification(verificationResult(err))
	if err != nil {
		s.logger.Warn("OTP verification failed", map[string]interface{}{
			"challenge_id": proof.ChallengeID,
			"user_id":      userID.String(),
			"error":        err.Error(),
		})
	}
	return err
}

func (s *Service) verify(ctx context.Context, userID uuid.UUID, proof Proof, scope string) error {
	if proof.ChallengeID == "" || proof.Code == "" {
		return errors.ErrOTPMismatch
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	ch, err := s.store.Load(ctx, proof.ChallengeID)
	if err != nil {
		return errors.FromContext(err)
	}
	if ch.UserID != userID {
		return errors.ErrOTPExpired
	}
	if !s.now().Before(ch.ExpiresAt) {
		_ = s.store.Delete(ctx, ch.ID)
		return errors.ErrOTPExpired
	}
	if ch.Scope != scope {
		return errors.ErrOTPScopeMismatch
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(proof.Code)) != nil {
		failures, err := s.store.RecordFailure(ctx, ch.ID, time.Until(ch.ExpiresAt))
		if err != nil {
			return errors.FromContext(err)
		}
		if failures >= s.cfg.MaxAttempts {
			_ = s.store.Delete(ctx, ch.ID)
			return errors.ErrOTPAttemptsExceeded
		}
		return errors.ErrOTPMismatch
	}

	consumed, err := s.store.Consume(ctx, ch.ID)
	if err != nil {
		return errors.FromContext(err)
	}
	if !consumed {
		return errors.ErrOTPExpired
	}
	return nil
}

func (s *Service) generateCode() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
	return hotp.GenerateCodeCustom(encoded, uint64(s.now().UnixNano()), hotp.ValidateOpts{
		Digits:    potp.Digits(s.cfg.Digits),
		Algorithm: potp.AlgorithmSHA1,
	})
}

func verificationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errors.ErrOTPMismatch):
		return "mismatch"
	case errors.Is(err, errors.ErrOTPAttemptsExceeded):
		return "exhausted"
	case errors.Is(err, errors.ErrOTPExpired):
		return "expired"
	case errors.Is(err, errors.ErrOTPScopeMismatch):
		return "scope_mismatch"
	default:
		return "error"
	}
}

// LogSender writes codes to the service log. Development only.
type LogSender struct {
	Logger logger.Logger
}

func (l LogSender) Send(_ context.Context, userID uuid.UUID, purpose, code string, expiresAt time.Time) error {
	l.Logger.Debug("OTP code generated", map[string]interface{}{
		"user_id":    userID.String(),
		"purpose":    purpose,
		"code":       code,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	return nil
}
