package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/db"
	"github.com/diewo77/bloodboard/internal/models"
)

const (
	adminUser  = "bbbbbbbb-0000-0000-0000-000000000001"
	editorUser = "bbbbbbbb-0000-0000-0000-000000000002"
	rivalAdmin = "bbbbbbbb-0000-0000-0000-000000000003"
	strayUser  = "bbbbbbbb-0000-0000-0000-000000000004"
)

// seedCenters creates Kandy (admin + editor) and Colombo (rival admin).
func seedCenters(t *testing.T, e *testEnv) (kandy, colombo *models.Center) {
	t.Helper()
	kandy = e.seedCenter(t, "Kandy General", "Kandy")
	colombo = e.seedCenter(t, "National Blood Center", "Colombo")
	e.seedMember(t, adminUser, kandy, models.RoleAdmin)
	e.seedMember(t, editorUser, kandy, models.RoleEditor)
	e.seedMember(t, rivalAdmin, colombo, models.RoleAdmin)
	return kandy, colombo
}

func TestCreateShortage(t *testing.T) {
	e := newEnv(t)
	kandy, _ := seedCenters(t, e)

	_, err := e.shortages.CreateShortage(context.Background(), ShortageInput{BloodType: "O+"})
	requireAppError(t, err, apperrors.KindAuthentication, apperrors.MsgNotAuthenticated)

	_, err = e.shortages.CreateShortage(asUser(strayUser), ShortageInput{BloodType: "O+"})
	requireAppError(t, err, apperrors.KindAuthorization, apperrors.MsgNoCenterShort)

	_, err = e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "C+"})
	requireAppError(t, err, apperrors.KindValidation, MsgInvalidBloodType)

	_, err = e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "O+", Status: "urgent"})
	requireAppError(t, err, apperrors.KindValidation, MsgInvalidStatus)

	sh, err := e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "O+", Notes: "need donors"})
	require.NoError(t, err)
	assert.Equal(t, kandy.ID, sh.CenterID)
	assert.Equal(t, models.StatusNormal, sh.Status)
	assert.Equal(t, "need donors", models.Deref(sh.Notes))
}

func TestUpdateShortage_OwnCenterOnly(t *testing.T) {
	e := newEnv(t)
	seedCenters(t, e)
	sh, err := e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "A-", Status: "low"})
	require.NoError(t, err)

	_, err = e.shortages.UpdateShortage(asUser(rivalAdmin), sh.ID, ShortageInput{BloodType: "A-", Status: "critical"})
	requireAppError(t, err, apperrors.KindAuthorization, MsgOwnCenterOnly)

	_, err = e.shortages.UpdateShortage(asUser(editorUser), sh.ID, ShortageInput{BloodType: "A-"})
	requireAppError(t, err, apperrors.KindValidation, MsgInvalidStatus)

	_, err = e.shortages.UpdateShortage(asUser(editorUser), "missing", ShortageInput{BloodType: "A-", Status: "low"})
	requireAppError(t, err, apperrors.KindNotFound, MsgShortageNotFound)

	updated, err := e.shortages.UpdateShortage(asUser(editorUser), sh.ID, ShortageInput{BloodType: "A-", Status: "critical"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCritical, updated.Status)
	assert.Nil(t, updated.Notes)

	var stored models.Shortage
	require.NoError(t, e.db.First(&stored, "id = ?", sh.ID).Error)
	assert.Equal(t, models.StatusCritical, stored.Status)
}

func TestDeleteShortage_AdminOnly(t *testing.T) {
	e := newEnv(t)
	seedCenters(t, e)
	sh, err := e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "B+", Status: "critical"})
	require.NoError(t, err)

	err = e.shortages.DeleteShortage(context.Background(), sh.ID)
	requireAppError(t, err, apperrors.KindAuthentication, apperrors.MsgNotAuthenticated)

	err = e.shortages.DeleteShortage(asUser(editorUser), sh.ID)
	requireAppError(t, err, apperrors.KindAuthorization, MsgOnlyAdminsDelete)
	assert.EqualValues(t, 1, e.count(t, &models.Shortage{}), "nothing deleted for non-admins")

	err = e.shortages.DeleteShortage(asUser(rivalAdmin), sh.ID)
	requireAppError(t, err, apperrors.KindAuthorization, MsgOwnCenterOnly)
	assert.EqualValues(t, 1, e.count(t, &models.Shortage{}))

	ctx := db.WithActor(asUser(adminUser), db.Actor{UserID: adminUser, IPAddress: "10.0.0.7"})
	require.NoError(t, e.shortages.DeleteShortage(ctx, sh.ID))
	assert.Zero(t, e.count(t, &models.Shortage{}))

	var entry models.AuditLog
	require.NoError(t, e.db.Where("table_name = ? AND action = ?", "shortages", models.AuditDelete).First(&entry).Error)
	assert.Equal(t, adminUser, models.Deref(entry.UserID))
	assert.Equal(t, "10.0.0.7", models.Deref(entry.IPAddress))
	assert.Equal(t, "B+", entry.OldData["blood_type"])
}

func TestGetShortages_Filters(t *testing.T) {
	e := newEnv(t)
	seedCenters(t, e)
	_, err := e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "O-", Status: "critical"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = e.shortages.CreateShortage(asUser(rivalAdmin), ShortageInput{BloodType: "A+", Status: "normal"})
	require.NoError(t, err)

	ctx := context.Background()
	all, err := e.shortages.GetShortages(ctx, ShortageFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.BloodTypeAPos, all[0].BloodType, "newest first")
	require.NotNil(t, all[0].Center)
	assert.Equal(t, "Colombo", all[0].Center.District)

	critical, err := e.shortages.GetShortages(ctx, ShortageFilters{Status: "critical"})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, models.BloodTypeONeg, critical[0].BloodType)

	colombo, err := e.shortages.GetShortages(ctx, ShortageFilters{District: "Colombo"})
	require.NoError(t, err)
	require.Len(t, colombo, 1)
	assert.Equal(t, models.BloodTypeAPos, colombo[0].BloodType)

	none, err := e.shortages.GetShortages(ctx, ShortageFilters{District: "Colombo", Status: "critical"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetUserCenter(t *testing.T) {
	e := newEnv(t)
	kandy, _ := seedCenters(t, e)

	_, err := e.shortages.GetUserCenter(context.Background())
	requireAppError(t, err, apperrors.KindAuthentication, apperrors.MsgNotAuthenticated)

	_, err = e.shortages.GetUserCenter(asUser(strayUser))
	requireAppError(t, err, apperrors.KindNotFound, apperrors.MsgNoCenterAssigned)

	m, err := e.shortages.GetUserCenter(asUser(editorUser))
	require.NoError(t, err)
	assert.Equal(t, kandy.ID, m.CenterID)
	require.NotNil(t, m.Center)
	assert.Equal(t, "Kandy General", m.Center.Name)

	list, err := e.shortages.GetShortagesByCenter(context.Background(), kandy.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
