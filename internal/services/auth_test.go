package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/identity"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
)

const (
	bankUser     = "aaaaaaaa-0000-0000-0000-000000000001"
	officialUser = "aaaaaaaa-0000-0000-0000-000000000002"
)

func TestSignup_ValidationBeforeAnyCall(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		in   SignupInput
		want string
	}{
		{"missing role", SignupInput{Email: "a@b.lk", Password: "secret1"}, MsgInvalidAccountType},
		{"unknown role", SignupInput{Role: "donor", Email: "a@b.lk", Password: "secret1"}, MsgInvalidAccountType},
		{"missing password", SignupInput{Role: "official", Email: "a@b.lk"}, MsgEmailPasswordRequired},
		{"short password", SignupInput{Role: "official", Email: "a@b.lk", Password: "12345"}, MsgPasswordTooShort},
		{"blood bank without district", SignupInput{Role: "blood_bank", Email: "a@b.lk", Password: "secret1", CenterName: "X"}, MsgCenterFieldsRequired},
		{"official without center", SignupInput{Role: "official", Email: "a@b.lk", Password: "secret1"}, MsgSelectCenter},
		{"bad phone", SignupInput{Role: "blood_bank", Email: "a@b.lk", Password: "secret1", CenterName: "X", District: "Kandy", Phone: "12"}, MsgInvalidPhone},
	}
	for _, tt := range tests {
		_, err := e.auth.Signup(context.Background(), tt.in)
		requireAppError(t, err, apperrors.KindValidation, tt.want)
	}
	assert.Zero(t, e.provider.calls)
	assert.Zero(t, e.count(t, &models.Center{}))
}

func TestSignup_OfficialBecomesEditor(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Kandy General", "Kandy")
	e.provider.signUp = &identity.SignUpResult{User: newUser(officialUser, "off@b.lk", true)}

	res, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, "Kandy General", res.CenterName)
	assert.False(t, res.RequiresEmailConfirmation)

	var members []models.UserCenter
	require.NoError(t, e.db.Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, officialUser, members[0].UserID)
	assert.Equal(t, c.ID, members[0].CenterID)
	assert.Equal(t, models.RoleEditor, members[0].Role)
}

func TestSignup_OfficialUnknownCenter(t *testing.T) {
	e := newEnv(t)
	_, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: "missing"})
	requireAppError(t, err, apperrors.KindNotFound, MsgCenterDoesNotExist)
	assert.Zero(t, e.provider.calls)
}

func TestSignup_BloodBankCreatesCenterAndAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.cache.Set(ctx, PathHome, []string{"stale"}, time.Minute))
	session := &identity.Session{AccessToken: "at", RefreshToken: "rt", User: newUser(bankUser, "bank@b.lk", true)}
	e.provider.signUp = &identity.SignUpResult{User: session.User, Session: session}

	res, err := e.auth.Signup(ctx, SignupInput{
		Role: "blood_bank", Email: "bank@b.lk", Password: "secret1",
		CenterName: "National Blood Center", District: "Colombo", Address: "Narahenpita",
	})
	require.NoError(t, err)
	assert.Same(t, session, res.Session)

	assert.EqualValues(t, 1, e.count(t, &models.Center{}))
	var m models.UserCenter
	require.NoError(t, e.db.Preload("Center").First(&m).Error)
	assert.Equal(t, models.RoleAdmin, m.Role)
	assert.Equal(t, "National Blood Center", m.Center.Name)
	assert.Equal(t, res.CenterID, m.CenterID)

	var stale []string
	ok, _ := e.cache.Get(ctx, PathHome, &stale)
	assert.False(t, ok, "home view invalidated")
	assert.True(t, e.gate.CanProfile(asUser(bankUser), gate.ActionDelete, policy.ResourceShortage))
}

func TestSignup_RequiresEmailConfirmation(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Galle", "Galle")
	e.provider.signUp = &identity.SignUpResult{User: newUser(officialUser, "off@b.lk", false)}

	res, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: c.ID})
	require.NoError(t, err)
	assert.True(t, res.RequiresEmailConfirmation)
	assert.Equal(t, MsgCheckEmail, res.Message)
	assert.Equal(t, "Galle", res.CenterName)
	assert.Nil(t, res.Session)
}

func TestSignup_AlreadyRegistered(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Galle", "Galle")
	e.provider.signUp = &identity.SignUpResult{User: &identity.User{ID: officialUser, Email: "off@b.lk"}}

	_, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: c.ID})
	requireAppError(t, err, apperrors.KindProvider, MsgAlreadyRegistered)
	assert.Empty(t, e.provider.deleted)
	assert.Zero(t, e.count(t, &models.UserCenter{}))
}

func TestSignup_ProviderErrorPassedThrough(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Galle", "Galle")
	e.provider.signUpErr = &identity.Error{Status: 422, Message: "Password should be at least 6 characters"}

	_, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: c.ID})
	requireAppError(t, err, apperrors.KindProvider, "Password should be at least 6 characters")
}

func TestSignup_LinkFailureDeletesIdentity(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Galle", "Galle")
	other := e.seedCenter(t, "Matara", "Matara")
	e.seedMember(t, officialUser, other, models.RoleEditor)
	e.provider.signUp = &identity.SignUpResult{User: newUser(officialUser, "off@b.lk", true)}

	_, err := e.auth.Signup(context.Background(), SignupInput{Role: "official", Email: "off@b.lk", Password: "secret1", CenterID: c.ID})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindLink, apperrors.KindOf(err))
	assert.True(t, strings.HasPrefix(apperrors.Message(err), "Failed to link account to center: "), apperrors.Message(err))
	assert.Equal(t, []string{officialUser}, e.provider.deleted)
	assert.EqualValues(t, 0, e.count(t, &models.UserCenter{}, "center_id = ?", c.ID))

	var entry models.AuditLog
	require.NoError(t, e.db.Where("table_name = ?", identityTable).First(&entry).Error)
	assert.Equal(t, models.AuditDelete, entry.Action)
	assert.Equal(t, officialUser, entry.OldData["id"])
}

func TestLogin_WithoutMembershipSignsOut(t *testing.T) {
	e := newEnv(t)
	e.provider.session = &identity.Session{AccessToken: "at", User: newUser(officialUser, "off@b.lk", true)}

	_, err := e.auth.Login(context.Background(), "off@b.lk", "secret1")
	requireAppError(t, err, apperrors.KindAuthorization, apperrors.MsgNoCenterAssigned)
	assert.Equal(t, []string{"at"}, e.provider.signedOut)
}

func TestLogin_WithMembership(t *testing.T) {
	e := newEnv(t)
	c := e.seedCenter(t, "Galle", "Galle")
	e.seedMember(t, officialUser, c, models.RoleEditor)
	e.provider.session = &identity.Session{AccessToken: "at", User: newUser(officialUser, "off@b.lk", true)}

	s, err := e.auth.Login(context.Background(), "off@b.lk", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
	assert.Empty(t, e.provider.signedOut)
}

func TestLogin_Errors(t *testing.T) {
	e := newEnv(t)
	e.provider.signInErr = &identity.Error{Status: 400, Message: identity.MsgInvalidCredentials}
	_, err := e.auth.Login(context.Background(), "x@b.lk", "nope")
	requireAppError(t, err, apperrors.KindProvider, identity.MsgInvalidCredentials)

	e.provider.signInErr = nil
	e.provider.session = nil
	_, err = e.auth.Login(context.Background(), "x@b.lk", "nope")
	requireAppError(t, err, apperrors.KindProvider, MsgFailedToSignIn)
}

func TestOTPFlow(t *testing.T) {
	e := newEnv(t)
	msg, err := e.auth.SendOTP(context.Background(), "off@b.lk")
	require.NoError(t, err)
	assert.Equal(t, MsgOTPSent, msg)

	e.provider.session = &identity.Session{AccessToken: "otp-at", User: newUser(officialUser, "off@b.lk", true)}
	_, err = e.auth.VerifyOTP(context.Background(), "off@b.lk", "123456")
	requireAppError(t, err, apperrors.KindAuthorization, apperrors.MsgNoCenterAssigned)
	assert.Equal(t, []string{"otp-at"}, e.provider.signedOut)
}

func TestSignOut(t *testing.T) {
	e := newEnv(t)
	e.auth.SignOut(context.Background(), "at")
	e.auth.SignOut(context.Background(), "")
	assert.Equal(t, []string{"at"}, e.provider.signedOut)
}
