package sessions_test

import (
	"errors"
	"testing"
	"time"

	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
	"funnelscope/internal/testsupport"
	"funnelscope/internal/timeframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeDevice(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"desktop", sessions.DeviceDesktop},
		{"Desktop", sessions.DeviceDesktop},
		{" mobile ", sessions.DeviceMobile},
		{"phone", sessions.DeviceMobile},
		{"smartphone", sessions.DeviceMobile},
		{"tablet", sessions.DeviceTablet},
		{"smart-tv", sessions.UnknownDevice},
		{"", sessions.UnknownDevice},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, sessions.NormalizeDevice(tc.raw), "raw=%q", tc.raw)
	}
}

func TestNormalizeSource(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"organic", sessions.SourceOrganic},
		{"organic_search", sessions.SourceOrganic},
		{"paid_search", sessions.SourcePaid},
		{"cpc", sessions.SourcePaid},
		{"social_media", sessions.SourceSocial},
		{"Direct", sessions.SourceDirect},
		{"referral", sessions.SourceReferral},
		{"email", sessions.SourceEmail},
		{"affiliate", sessions.UnknownSource},
		{"", sessions.UnknownSource},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, sessions.NormalizeSource(tc.raw), "raw=%q", tc.raw)
	}
}

func TestBuildBatch(t *testing.T) {
	logger := testsupport.GetLogger()
	ts := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)

	batch, err := sessions.BuildBatch(logger, []sessions.CollectSessionInput{
		{
			SessionID: "sess-1",
			Device:    "Desktop",
			Source:    "organic_search",
			Events: []sessions.CollectEventInput{
				{Stage: "homepage", Timestamp: ts.Add(time.Minute)},
				{Stage: "product_page", Timestamp: ts},
			},
		},
		{
			Device: "fridge",
			Source: "carrier_pigeon",
		},
	})
	require.NoError(t, err)

	require.Len(t, batch.Sessions, 2)
	require.Len(t, batch.Events, 2)

	first := batch.Sessions[0]
	assert.Equal(t, "sess-1", first.ID)
	assert.Equal(t, sessions.DeviceDesktop, first.Device)
	assert.Equal(t, sessions.SourceOrganic, first.Source)
	assert.Equal(t, ts, first.StartedAt, "session start derives from the earliest event")

	second := batch.Sessions[1]
	assert.NotEmpty(t, second.ID, "missing session IDs are generated")
	assert.Equal(t, sessions.UnknownDevice, second.Device)
	assert.Equal(t, sessions.UnknownSource, second.Source)

	assert.Equal(t, funnel.StageHomepage.Rank(), batch.Events[0].Stage)
	assert.Equal(t, funnel.StageProduct.Rank(), batch.Events[1].Stage)
}

func TestBuildBatchUnknownStage(t *testing.T) {
	logger := testsupport.GetLogger()

	_, err := sessions.BuildBatch(logger, []sessions.CollectSessionInput{
		{
			SessionID: "sess-err",
			Device:    "desktop",
			Source:    "direct",
			Events:    []sessions.CollectEventInput{{Stage: "wishlist"}},
		},
	})
	require.Error(t, err)

	var unknownStage *sessions.UnknownStageError
	require.True(t, errors.As(err, &unknownStage))
	assert.Equal(t, "wishlist", unknownStage.Stage)
	assert.Equal(t, "sess-err", unknownStage.SessionID)
}

func TestInsertBatchAndLoadJourneys(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	batch, err := sessions.BuildBatch(logger, []sessions.CollectSessionInput{
		{
			SessionID: "load-1",
			Device:    "desktop",
			Source:    "email",
			Events: []sessions.CollectEventInput{
				{Stage: "homepage", Timestamp: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
				{Stage: "payment", Timestamp: time.Date(2026, 4, 1, 9, 15, 0, 0, time.UTC)},
			},
		},
		{
			SessionID: "load-2",
			Device:    "mobile",
			Source:    "social_media",
		},
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return sessions.InsertBatch(tx, batch)
	})
	require.NoError(t, err)

	journeys, err := sessions.LoadJourneys(db, nil)
	require.NoError(t, err)
	require.Len(t, journeys, 2)

	assert.Equal(t, "load-1", journeys[0].SessionID)
	assert.Equal(t, sessions.DeviceDesktop, journeys[0].Device)
	assert.Equal(t, funnel.StagePayment, journeys[0].Reach())

	assert.Equal(t, "load-2", journeys[1].SessionID)
	assert.Equal(t, funnel.StageNone, journeys[1].Reach(), "session without events still loads")
}

func TestLoadJourneysTimeFiltered(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestSession(t, db, "tf-1", sessions.DeviceDesktop, sessions.SourceOrganic)
	early := sessions.StageEvent{SessionID: "tf-1", Stage: funnel.StageHomepage.Rank(), Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	late := sessions.StageEvent{SessionID: "tf-1", Stage: funnel.StageCheckout.Rank(), Timestamp: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.Create(&early).Error)
	require.NoError(t, db.Create(&late).Error)

	tf, err := timeframe.NewTimeFrame(
		time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	journeys, err := sessions.LoadJourneys(db, tf)
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, funnel.StageHomepage, journeys[0].Reach(), "events outside the frame must not count toward reach")
}

func TestDeleteEventsBefore(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestSession(t, db, "old-1", sessions.DeviceTablet, sessions.SourceDirect)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := sessions.StageEvent{SessionID: "old-1", Stage: funnel.StageHomepage.Rank(), Timestamp: cutoff.AddDate(0, 0, -i-1)}
		require.NoError(t, db.Create(&ev).Error)
	}
	keep := sessions.StageEvent{SessionID: "old-1", Stage: funnel.StageCategory.Rank(), Timestamp: cutoff.AddDate(0, 0, 1)}
	require.NoError(t, db.Create(&keep).Error)

	deleted, err := sessions.DeleteEventsBefore(db, cutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	remaining, err := sessions.CountEvents(db, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestReset(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	testsupport.CreateTestJourney(t, db, "reset-1", sessions.DeviceMobile, sessions.SourcePaid, funnel.StagePurchase)
	require.NoError(t, sessions.Reset(db))

	count, err := sessions.CountSessions(db)
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = sessions.CountEvents(db, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}
