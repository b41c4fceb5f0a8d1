package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/auth"
	"github.com/diewo77/bloodboard/internal/models"
)

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
	codeTTL         = 10 * time.Minute
	codeDigits      = 6
)

// Mailer delivers one-time codes.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log instead of sending it.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Logger.Info("outgoing email", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}

// LocalConfig configures the built-in provider.
type LocalConfig struct {
	JWTSecret string
	// RequireEmailConfirmation holds new accounts until their sign-up code is verified.
	RequireEmailConfirmation bool
}

// Local is a Provider backed by the users and one_time_codes tables.
// Tokens are stateless HS256 JWTs, so SignOut cannot revoke them server side.
type Local struct {
	db     *gorm.DB
	cfg    LocalConfig
	mailer Mailer
	logger *zap.Logger
	now    func() time.Time
}

func NewLocal(db *gorm.DB, cfg LocalConfig, mailer Mailer, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Local{db: db, cfg: cfg, mailer: mailer, logger: logger, now: time.Now}
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (l *Local) findUser(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := l.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func toUser(u *models.User) *User {
	return &User{ID: u.ID, Email: u.Email, EmailConfirmedAt: u.EmailConfirmedAt, Identities: 1}
}

func (l *Local) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	existing, err := l.findUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// same answer shape as the hosted provider: a user without identities
		return &SignUpResult{User: &User{ID: existing.ID, Email: existing.Email}}, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Email: normalizeEmail(email), PasswordHash: string(hash)}
	if !l.cfg.RequireEmailConfirmation {
		now := l.now().UTC()
		u.EmailConfirmedAt = &now
	}
	if err := l.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if l.cfg.RequireEmailConfirmation {
		if err := l.issueCode(ctx, u.Email, models.CodeSignup, "Confirm your signup"); err != nil {
			return nil, err
		}
		return &SignUpResult{User: toUser(u)}, nil
	}
	s, err := l.session(u)
	if err != nil {
		return nil, err
	}
	return &SignUpResult{User: s.User, Session: s}, nil
}

func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	u, err := l.findUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidCredentials}
	}
	if u.EmailConfirmedAt == nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgEmailNotConfirmed}
	}
	return l.session(u)
}

// SignOut has nothing to revoke; the caller drops the session cookie.
func (l *Local) SignOut(_ context.Context, _ string) error { return nil }

func (l *Local) SendOTP(ctx context.Context, email string) error {
	u, err := l.findUser(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return &Error{Status: http.StatusUnprocessableEntity, Message: MsgOTPSignupsDisabled}
	}
	return l.issueCode(ctx, u.Email, models.CodeLogin, "Your login code")
}

func (l *Local) issueCode(ctx context.Context, email string, purpose models.CodePurpose, subject string) error {
	code, err := randomCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	now := l.now()
	otc := &models.OneTimeCode{Email: email, CodeHash: string(hash), Purpose: purpose, ExpiresAt: now.Add(codeTTL), CreatedAt: now}
	if err := l.db.WithContext(ctx).Create(otc).Error; err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	body := fmt.Sprintf("Your code is %s. It expires in %d minutes.", code, int(codeTTL.Minutes()))
	if err := l.mailer.Send(ctx, email, subject, body); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// VerifyOTP redeems a login or sign-up code. Redeeming a sign-up code confirms the email.
// Only the newest usable code of each purpose is checked, and a wrong guess counts
// against it until it is burned at models.MaxCodeAttempts.
func (l *Local) VerifyOTP(ctx context.Context, email, token string) (*Session, error) {
	u, err := l.findUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &Error{Status: http.StatusForbidden, Message: MsgOTPInvalid}
	}

	var codes []models.OneTimeCode
	if err := l.db.WithContext(ctx).
		Where("email = ? AND consumed_at IS NULL", u.Email).
		Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	candidates := newestUsable(codes, l.now())
	for _, c := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(c.CodeHash), []byte(token)) != nil {
			continue
		}
		now := l.now().UTC()
		if err := l.db.WithContext(ctx).Model(c).Update("consumed_at", now).Error; err != nil {
			return nil, err
		}
		if u.EmailConfirmedAt == nil {
			if err := l.db.WithContext(ctx).Model(u).Update("email_confirmed_at", now).Error; err != nil {
				return nil, err
			}
			u.EmailConfirmedAt = &now
		}
		return l.session(u)
	}
	for _, c := range candidates {
		if err := l.recordFailure(ctx, c); err != nil {
			return nil, err
		}
	}
	return nil, &Error{Status: http.StatusForbidden, Message: MsgOTPInvalid}
}

// newestUsable picks the most recent usable code per purpose from codes ordered newest first.
func newestUsable(codes []models.OneTimeCode, now time.Time) []*models.OneTimeCode {
	seen := make(map[models.CodePurpose]bool, 2)
	var out []*models.OneTimeCode
	for i := range codes {
		c := &codes[i]
		if seen[c.Purpose] || !c.Usable(now) {
			continue
		}
		seen[c.Purpose] = true
		out = append(out, c)
	}
	return out
}

func (l *Local) recordFailure(ctx context.Context, c *models.OneTimeCode) error {
	updates := map[string]any{"failed_attempts": gorm.Expr("failed_attempts + 1")}
	if c.FailedAttempts+1 >= models.MaxCodeAttempts {
		updates["consumed_at"] = l.now().UTC()
	}
	if err := l.db.WithContext(ctx).Model(&models.OneTimeCode{}).Where("id = ?", c.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("record failed code attempt: %w", err)
	}
	return nil
}

func (l *Local) GetUser(ctx context.Context, userID string) (*User, error) {
	var u models.User
	err := l.db.WithContext(ctx).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &Error{Status: http.StatusNotFound, Message: MsgUserNotFound}
	}
	if err != nil {
		return nil, err
	}
	return toUser(&u), nil
}

func (l *Local) DeleteUser(ctx context.Context, userID string) error {
	var u models.User
	if err := l.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Error{Status: http.StatusNotFound, Message: MsgUserNotFound}
		}
		return err
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", u.Email).Delete(&models.OneTimeCode{}).Error; err != nil {
			return err
		}
		return tx.Delete(&u).Error
	})
}

func (l *Local) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	claims, err := NewHS256Verifier(l.cfg.JWTSecret).Parse(refreshToken)
	if err != nil || claims.Type != refreshTokenType {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidRefresh}
	}
	var u models.User
	if err := l.db.WithContext(ctx).First(&u, "id = ?", claims.Subject).Error; err != nil {
		return nil, &Error{Status: http.StatusBadRequest, Message: MsgInvalidRefresh}
	}
	s, err := l.session(&u)
	if err != nil {
		return nil, err
	}
	t := s.Tokens()
	return &t, nil
}

func (l *Local) session(u *models.User) (*Session, error) {
	now := l.now()
	access, err := l.sign(u, "", now, accessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := l.sign(u, refreshTokenType, now, refreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(accessTokenTTL.Seconds()),
		User:         toUser(u),
	}, nil
}

func (l *Local) sign(u *models.User, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: u.Email,
		Role:  "authenticated",
		Type:  typ,
	}
	// the id keeps tokens issued within the same second distinct
	claims.ID = uuid.NewString()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.cfg.JWTSecret))
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

var _ Provider = (*Local)(nil)
