package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/cache"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
	"github.com/diewo77/bloodboard/validation"
)

const (
	MsgInvalidAccountType    = "Please select a valid account type"
	MsgEmailPasswordRequired = "Email and password are required"
	MsgPasswordTooShort      = "Password must be at least 6 characters"
	MsgCenterFieldsRequired  = "Center name and district are required"
	MsgSelectCenter          = "Please select a blood bank center"
	MsgInvalidPhone          = "Phone number is not valid"
	MsgCenterDoesNotExist    = "Selected blood bank center does not exist"
	MsgAlreadyRegistered     = "User already registered"
	MsgFailedToSignIn        = "Failed to sign in"
	MsgOTPSent               = "OTP sent to your email"
	MsgCheckEmail            = "Account created! Please check your email to verify your account before signing in."
	msgLinkFailed            = "Failed to link account to center: "
	msgCreateCenterFailed    = "Failed to create blood bank center"

	minPasswordLength = 6

	// identityTable names provider identities in the audit log.
	identityTable = "auth_identities"
)

var errAlreadyLinked = errors.New("user is already linked to a center")

// SignupInput is the signup form.
type SignupInput struct {
	Role       string `form:"role"`
	Email      string `form:"email"`
	Password   string `form:"password"`
	CenterName string `form:"center_name"`
	District   string `form:"district"`
	Address    string `form:"address"`
	Phone      string `form:"phone"`
	CenterID   string `form:"center_id"`
}

// SignupResult is a successful signup. Session is nil when the email must be confirmed
// or the provider did not open one.
type SignupResult struct {
	UserID                    string
	CenterID                  string
	CenterName                string
	RequiresEmailConfirmation bool
	Message                   string
	Session                   *identity.Session
}

type AuthService struct {
	db       *gorm.DB
	provider identity.Provider
	gate     *policy.AuthGate
	cache    cache.Store
	log      *zap.Logger
}

func NewAuthService(gdb *gorm.DB, provider identity.Provider, g *policy.AuthGate, store cache.Store, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{db: gdb, provider: provider, gate: g, cache: store, log: log}
}

func validateSignup(in SignupInput) error {
	acct := models.AccountType(in.Role)
	switch {
	case acct != models.AccountBloodBank && acct != models.AccountOfficial:
		return apperrors.Validation(MsgInvalidAccountType)
	case in.Email == "" || in.Password == "":
		return apperrors.Validation(MsgEmailPasswordRequired)
	case len(in.Password) < minPasswordLength:
		return apperrors.Validation(MsgPasswordTooShort)
	case acct == models.AccountBloodBank && (in.CenterName == "" || in.District == ""):
		return apperrors.Validation(MsgCenterFieldsRequired)
	case acct == models.AccountOfficial && in.CenterID == "":
		return apperrors.Validation(MsgSelectCenter)
	case acct == models.AccountBloodBank && in.Phone != "" && !validation.IsPhone(in.Phone, validation.DefaultRegion):
		return apperrors.Validation(MsgInvalidPhone)
	}
	return nil
}

// Signup creates or selects the center, creates the identity and links the two.
// When linking fails the identity is deleted again; the center is kept.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if err := validateSignup(in); err != nil {
		return nil, err
	}
	acct := models.AccountType(in.Role)

	var center models.Center
	if acct == models.AccountBloodBank {
		center = models.Center{
			Name:     in.CenterName,
			District: in.District,
			Address:  models.StringPtr(in.Address),
			Phone:    models.StringPtr(in.Phone),
		}
		if err := s.db.WithContext(ctx).Create(&center).Error; err != nil {
			s.log.Error("failed to create center", zap.String("name", in.CenterName), zap.Error(err))
			return nil, storeError(msgCreateCenterFailed, err)
		}
	} else {
		err := s.db.WithContext(ctx).Select("id", "name").First(&center, "id = ?", in.CenterID).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				s.log.Warn("center lookup failed", zap.String("center_id", in.CenterID), zap.Error(err))
			}
			return nil, apperrors.NotFound(MsgCenterDoesNotExist)
		}
	}

	res, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	if res.AlreadyRegistered() {
		return nil, &apperrors.Error{Kind: apperrors.KindProvider, Message: MsgAlreadyRegistered}
	}
	userID := res.User.ID

	if err := s.link(ctx, userID, center.ID, acct.MembershipRole()); err != nil {
		s.log.Error("failed to link user to center",
			zap.String("user_id", userID), zap.String("center_id", center.ID),
			zap.String("role", string(acct.MembershipRole())), zap.Error(err))
		s.compensate(ctx, userID, in.Email)
		return nil, apperrors.Link(msgLinkFailed+err.Error(), err)
	}

	s.gate.InvalidateUser(userID)
	invalidate(ctx, s.cache, s.log, PathHome, PathDashboard)

	out := &SignupResult{UserID: userID, CenterID: center.ID, CenterName: center.Name}
	if res.RequiresEmailConfirmation() {
		out.RequiresEmailConfirmation = true
		out.Message = MsgCheckEmail
		return out, nil
	}
	out.Session = res.Session
	return out, nil
}

func (s *AuthService) link(ctx context.Context, userID, centerID string, role models.Role) error {
	actor, _ := db.ActorFromContext(ctx)
	ctx = db.WithActor(ctx, db.Actor{UserID: userID, IPAddress: actor.IPAddress})

	var existing models.UserCenter
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&existing).Error
	switch {
	case err == nil:
		return errAlreadyLinked
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return s.db.WithContext(ctx).Create(&models.UserCenter{UserID: userID, CenterID: centerID, Role: role}).Error
}

// compensate removes an identity whose membership could not be created.
// Failures are logged and audited, never returned.
func (s *AuthService) compensate(ctx context.Context, userID, email string) {
	entry := &models.AuditLog{
		Action:  models.AuditDelete,
		Table:   identityTable,
		OldData: map[string]any{"id": userID, "email": email},
	}
	if err := s.provider.DeleteUser(ctx, userID); err != nil {
		s.log.Error("failed to delete identity after link failure", zap.String("user_id", userID), zap.Error(err))
		entry.NewData = map[string]any{"error": err.Error()}
	}
	if err := db.RecordAudit(s.db.WithContext(ctx), entry); err != nil {
		s.log.Error("failed to audit identity compensation", zap.String("user_id", userID), zap.Error(err))
	}
}

// Login signs in with a password. The session is only usable when the user has a center.
func (s *AuthService) Login(ctx context.Context, email, password string) (*identity.Session, error) {
	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	return s.admit(ctx, session)
}

// SendOTP emails a login code to an existing user.
func (s *AuthService) SendOTP(ctx context.Context, email string) (string, error) {
	if err := s.provider.SendOTP(ctx, email); err != nil {
		return "", apperrors.Provider(err)
	}
	return MsgOTPSent, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, email, token string) (*identity.Session, error) {
	session, err := s.provider.VerifyOTP(ctx, email, token)
	if err != nil {
		return nil, apperrors.Provider(err)
	}
	return s.admit(ctx, session)
}

// admit lets a fresh session through only when its user has a membership.
// Otherwise the session is signed out right away.
func (s *AuthService) admit(ctx context.Context, session *identity.Session) (*identity.Session, error) {
	if session == nil || session.User == nil {
		return nil, &apperrors.Error{Kind: apperrors.KindProvider, Message: MsgFailedToSignIn}
	}
	userID := session.User.ID

	var m models.UserCenter
	err := s.db.WithContext(ctx).Select("id").Where("user_id = ?", userID).Take(&m).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("error checking center assignment", zap.String("user_id", userID), zap.Error(err))
		}
		if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
			s.log.Warn("sign out after missing membership failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, apperrors.Forbidden(apperrors.MsgNoCenterAssigned)
	}

	s.gate.InvalidateUser(userID)
	invalidate(ctx, s.cache, s.log, PathHome)
	return session, nil
}

// SignOut ends the provider session. Provider failures are logged only.
func (s *AuthService) SignOut(ctx context.Context, accessToken string) {
	if accessToken != "" {
		if err := s.provider.SignOut(ctx, accessToken); err != nil {
			s.log.Warn("provider sign out failed", zap.Error(err))
		}
	}
	invalidate(ctx, s.cache, s.log, PathHome)
}
