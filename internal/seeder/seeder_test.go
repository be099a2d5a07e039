package seeder_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelscope/internal/funnel"
	"funnelscope/internal/seeder"
	"funnelscope/internal/sessions"
	"funnelscope/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	dm := testsupport.SetupTestDBManager(t)

	s := seeder.NewSeeder(dm, testsupport.GetLogger(), 200)
	require.NoError(t, s.Run(context.Background()))

	count, err := sessions.CountSessions(db)
	require.NoError(t, err)
	assert.Equal(t, int64(200), count)

	journeys, err := sessions.LoadJourneys(db, nil)
	require.NoError(t, err)
	require.Len(t, journeys, 200)

	purchases := 0
	for _, j := range journeys {
		assert.True(t, sessions.IsKnownDevice(j.Device), "device %q", j.Device)
		assert.True(t, sessions.IsKnownSource(j.Source), "source %q", j.Source)
		require.NotEmpty(t, j.Stages)
		if j.Reach() == funnel.StagePurchase {
			purchases++
		}
	}
	assert.Greater(t, purchases, 0)

	// Generated counts are funnel-shaped, so the report must come out clean
	// with every session entering at the top.
	report, err := funnel.ComputeMetrics(funnel.Aggregate(journeys))
	require.NoError(t, err)
	assert.Equal(t, int64(200), report.Stages[0].Count)
	assert.Equal(t, int64(purchases), report.Stages[funnel.NumStages-1].Count)
}

func TestSeederRunPurchaseMetadata(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	dm := testsupport.SetupTestDBManager(t)

	s := seeder.NewSeeder(dm, testsupport.GetLogger(), 300)
	require.NoError(t, s.Run(context.Background()))

	var purchaseEvents []sessions.StageEvent
	require.NoError(t, db.Where("stage = ?", funnel.StagePurchase.Rank()).Find(&purchaseEvents).Error)
	require.NotEmpty(t, purchaseEvents)

	for _, ev := range purchaseEvents {
		var meta map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(ev.Metadata), &meta))
		total, ok := meta["order_total"].(float64)
		require.True(t, ok, "order_total missing in %s", ev.Metadata)
		assert.Greater(t, total, 0.0)
		assert.NotEmpty(t, meta["products"])
	}

	// timestamps land inside the simulated window
	var oldest sessions.StageEvent
	require.NoError(t, db.Order("timestamp asc").First(&oldest).Error)
	assert.True(t, oldest.Timestamp.After(time.Now().AddDate(0, 0, -31)))
}

func TestSeederWithSeedReproducible(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	dm := testsupport.SetupTestDBManager(t)

	run := func() funnel.StageCounts {
		t.Helper()
		testsupport.CleanAllTables(db)
		s := seeder.NewSeeder(dm, testsupport.GetLogger(), 400).WithSeed(42)
		require.NoError(t, s.Run(context.Background()))

		journeys, err := sessions.LoadJourneys(db, nil)
		require.NoError(t, err)
		require.Len(t, journeys, 400)
		return funnel.Aggregate(journeys)
	}

	first := run()
	assert.Equal(t, int64(400), first[0])

	// Checkout and payment thin the full-funnel candidates down to roughly
	// 8% of sessions converting.
	purchases := first[funnel.NumStages-1]
	assert.GreaterOrEqual(t, purchases, int64(5))
	assert.LessOrEqual(t, purchases, int64(100))

	second := run()
	assert.Equal(t, first, second)
}

func TestSeederRunCancelled(t *testing.T) {
	dm := testsupport.SetupTestDBManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := seeder.NewSeeder(dm, testsupport.GetLogger(), 50)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestNewSeederDefaults(t *testing.T) {
	s := seeder.NewSeeder(nil, nil, 0)
	assert.Equal(t, 1000, s.SessionCount)
	assert.NotNil(t, s.Logger)
}
