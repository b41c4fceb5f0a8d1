package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/diewo77/bloodboard/internal/apperrors"
	"github.com/diewo77/bloodboard/internal/models"
)

func TestListAuditLogs(t *testing.T) {
	e := newEnv(t)
	kandy, colombo := seedCenters(t, e)
	_, err := e.shortages.CreateShortage(asUser(editorUser), ShortageInput{BloodType: "O+"})
	require.NoError(t, err)

	_, err = e.audit.ListAuditLogs(context.Background(), models.AuditFilters{})
	requireAppError(t, err, apperrors.KindAuthentication, apperrors.MsgNotAuthenticated)

	_, err = e.audit.ListAuditLogs(asUser(editorUser), models.AuditFilters{})
	requireAppError(t, err, apperrors.KindAuthorization, MsgOnlyAdminsAudit)

	_, err = e.audit.ListAuditLogs(asUser(strayUser), models.AuditFilters{})
	requireAppError(t, err, apperrors.KindAuthorization, MsgOnlyAdminsAudit)

	logs, err := e.audit.ListAuditLogs(asUser(adminUser), models.AuditFilters{})
	require.NoError(t, err)
	// two centers, three memberships, one shortage
	require.Len(t, logs, 6)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].Timestamp.After(logs[i-1].Timestamp), "newest first")
	}

	kandyLogs, err := e.audit.ListAuditLogs(asUser(adminUser), models.AuditFilters{CenterID: kandy.ID, Action: string(models.AuditCreate)})
	require.NoError(t, err)
	require.Len(t, kandyLogs, 4)
	for _, l := range kandyLogs {
		require.NotNil(t, l.Center)
		assert.Equal(t, "Kandy General", l.Center.Name)
	}

	tomorrow := time.Now().Add(24 * time.Hour)
	future, err := e.audit.ListAuditLogs(asUser(adminUser), models.AuditFilters{StartDate: &tomorrow})
	require.NoError(t, err)
	assert.Empty(t, future)

	centers, err := e.audit.CentersForAudit(context.Background())
	require.NoError(t, err)
	require.Len(t, centers, 2)
	assert.Equal(t, colombo.ID, centers[1].ID)
	assert.Equal(t, "Kandy General", centers[0].Name)
}

func TestExportAuditLogs(t *testing.T) {
	e := newEnv(t)
	seedCenters(t, e)

	_, err := e.audit.ExportAuditLogs(asUser(editorUser), models.AuditFilters{})
	requireAppError(t, err, apperrors.KindAuthorization, MsgOnlyAdminsAudit)

	b, err := e.audit.ExportAuditLogs(asUser(adminUser), models.AuditFilters{})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(auditSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, auditExportHeader, rows[0])
	assert.Equal(t, "create", rows[1][1])
}

func TestParseAuditFilters(t *testing.T) {
	f := ParseAuditFilters("c1", "delete", "2024-05-01", "2024-05-02")
	assert.Equal(t, "c1", f.CenterID)
	require.NotNil(t, f.StartDate)
	require.NotNil(t, f.EndDate)
	assert.Equal(t, 2, f.EndDate.Day())
	assert.Equal(t, 23, f.EndDate.Hour())

	empty := ParseAuditFilters("", "", "not-a-date", "")
	assert.Nil(t, empty.StartDate)
	assert.Nil(t, empty.EndDate)
}
