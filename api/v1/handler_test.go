// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "funnelscope/api/v1"
	"funnelscope/internal/funnel"
	"funnelscope/internal/sessions"
	"funnelscope/internal/testsupport"
)

func postSessions(t *testing.T, payload interface{}, apiKey string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	app := testsupport.CreateTestApp(t)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func TestCreateSessionsHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("accepts valid session batch", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		now := time.Now().UTC()
		payload := map[string]interface{}{
			"sessions": []map[string]interface{}{
				{
					"session_id": "collect-1",
					"device":     "mobile",
					"source":     "paid_search",
					"events": []map[string]interface{}{
						{"stage": "homepage", "timestamp": now},
						{"stage": "category_page", "timestamp": now.Add(10 * time.Second)},
						{"stage": "product_page", "timestamp": now.Add(20 * time.Second)},
					},
				},
			},
		}

		resp := postSessions(t, payload, testsupport.TestAPIKey)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var respBody map[string]interface{}
		decodeBody(t, resp, &respBody)
		assert.Equal(t, "Sessions added successfully", respBody["message"])
		assert.Equal(t, float64(1), respBody["sessions"])
		assert.Equal(t, float64(3), respBody["events"])

		var stored sessions.Session
		require.NoError(t, db.First(&stored, "id = ?", "collect-1").Error)
		assert.Equal(t, sessions.DeviceMobile, stored.Device)
		assert.Equal(t, sessions.SourcePaid, stored.Source)

		var eventCount int64
		require.NoError(t, db.Model(&sessions.StageEvent{}).Count(&eventCount).Error)
		assert.Equal(t, int64(3), eventCount)
	})

	t.Run("rejects missing api key", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		payload := map[string]interface{}{"sessions": []map[string]interface{}{{"device": "desktop"}}}
		resp := postSessions(t, payload, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects wrong api key", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		payload := map[string]interface{}{"sessions": []map[string]interface{}{{"device": "desktop"}}}
		resp := postSessions(t, payload, "not-the-key")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var respBody map[string]interface{}
		decodeBody(t, resp, &respBody)
		assert.Equal(t, "Invalid API key", respBody["error"])
	})

	t.Run("rejects unknown stage and stores nothing", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		payload := map[string]interface{}{
			"sessions": []map[string]interface{}{
				{
					"session_id": "collect-bad",
					"device":     "desktop",
					"source":     "direct",
					"events": []map[string]interface{}{
						{"stage": "homepage", "timestamp": time.Now().UTC()},
						{"stage": "warehouse", "timestamp": time.Now().UTC()},
					},
				},
			},
		}

		resp := postSessions(t, payload, testsupport.TestAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var respBody map[string]interface{}
		decodeBody(t, resp, &respBody)
		assert.Equal(t, "UNKNOWN_STAGE", respBody["code"])

		var count int64
		require.NoError(t, db.Model(&sessions.Session{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		resp := postSessions(t, map[string]interface{}{"sessions": []map[string]interface{}{}}, testsupport.TestAPIKey)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetFunnelHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t)

	t.Run("reports the current snapshot", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreateTestJourney(t, db, "f-1", "desktop", "organic", funnel.StagePurchase)
		testsupport.CreateTestJourney(t, db, "f-2", "mobile", "paid", funnel.StageAddToCart)
		testsupport.CreateTestJourney(t, db, "f-3", "desktop", "direct", funnel.StageHomepage)

		req := httptest.NewRequest("GET", "/api/v1/funnel", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var report v1.FunnelResponse
		decodeBody(t, resp, &report)

		assert.Equal(t, int64(3), report.Sessions)
		require.Len(t, report.Stages, funnel.NumStages)
		assert.Equal(t, int64(3), report.Stages[0].Count)
		assert.Equal(t, int64(2), report.Stages[3].Count)
		assert.Equal(t, int64(1), report.Stages[7].Count)
		assert.InDelta(t, 1.0/3.0, report.Stages[7].ConversionRate, 1e-9)
		assert.Len(t, report.Transitions, funnel.NumStages-1)
		assert.Len(t, report.Bottlenecks, funnel.NumStages-1)
		assert.False(t, report.GeneratedAt.IsZero())
	})

	t.Run("empty snapshot yields all-zero report", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := httptest.NewRequest("GET", "/api/v1/funnel", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var report v1.FunnelResponse
		decodeBody(t, resp, &report)

		assert.Zero(t, report.Sessions)
		require.Len(t, report.Stages, funnel.NumStages)
		for _, stage := range report.Stages {
			assert.Zero(t, stage.Count)
			assert.Zero(t, stage.ConversionRate)
		}
		assert.Empty(t, report.Bottlenecks)
	})

	t.Run("applies the requested time range", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		testsupport.CreateTestJourney(t, db, "f-old", "desktop", "organic", funnel.StageCheckout)

		// events carry current timestamps, so a range in the distant past
		// matches none of them
		req := httptest.NewRequest("GET", "/api/v1/funnel?from=2000-01-01&to=2000-01-02", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var report v1.FunnelResponse
		decodeBody(t, resp, &report)
		assert.Equal(t, int64(1), report.Sessions)
		assert.Zero(t, report.Stages[0].Count)
	})

	t.Run("rejects malformed dates", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnel?from=yesterday", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetSegmentsHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t)

	testsupport.CleanAllTables(db)
	testsupport.CreateTestJourney(t, db, "seg-1", "desktop", "organic", funnel.StagePurchase)
	testsupport.CreateTestJourney(t, db, "seg-2", "mobile", "social", funnel.StageHomepage)

	t.Run("defaults to the device axis", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnel/segments", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var segs v1.SegmentsResponse
		decodeBody(t, resp, &segs)

		assert.Equal(t, "device", segs.Axis)
		require.Contains(t, segs.Segments, "desktop")
		require.Contains(t, segs.Segments, "mobile")
		assert.Equal(t, int64(1), segs.Segments["desktop"].Stages[7].Count)
		assert.Zero(t, segs.Segments["mobile"].Stages[7].Count)
	})

	t.Run("selects the source axis", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnel/segments?by=source", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var segs v1.SegmentsResponse
		decodeBody(t, resp, &segs)

		assert.Equal(t, "source", segs.Axis)
		require.Contains(t, segs.Segments, "organic")
		require.Contains(t, segs.Segments, "social")
	})

	t.Run("rejects unknown axes", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnel/segments?by=country", nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var respBody map[string]interface{}
		decodeBody(t, resp, &respBody)
		assert.Equal(t, "UNKNOWN_AXIS", respBody["code"])
	})
}

func TestGetBottlenecksHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t)

	testsupport.CleanAllTables(db)
	testsupport.CreateTestJourney(t, db, "b-1", "desktop", "organic", funnel.StagePurchase)
	testsupport.CreateTestJourney(t, db, "b-2", "mobile", "paid", funnel.StageHomepage)

	req := httptest.NewRequest("GET", "/api/v1/bottlenecks", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body v1.BottlenecksResponse
	decodeBody(t, resp, &body)

	assert.Equal(t, int64(2), body.Sessions)
	require.Len(t, body.Bottlenecks, funnel.NumStages-1)

	// only the first transition loses anyone here
	worst := body.Bottlenecks[0]
	assert.Equal(t, 1, worst.FromRank)
	assert.InDelta(t, 0.5, worst.DropoffRate, 1e-9)
	assert.Equal(t, int64(1), worst.SessionsLost)
	assert.Equal(t, funnel.SeverityHigh, worst.Severity)
}

func TestGetSummaryHandler(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t)

	testsupport.CleanAllTables(db)
	testsupport.CreateTestJourney(t, db, "sum-1", "desktop", "organic", funnel.StagePayment)
	testsupport.CreateTestPurchase(t, db, "sum-1", 120.50)
	testsupport.CreateTestJourney(t, db, "sum-2", "mobile", "social", funnel.StageHomepage)

	req := httptest.NewRequest("GET", "/api/v1/summary", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		TotalEvents       int64   `json:"total_events"`
		TotalSessions     int64   `json:"total_sessions"`
		FunnelEntries     int64   `json:"funnel_entries"`
		Purchases         int64   `json:"purchases"`
		OverallConversion float64 `json:"overall_conversion"`
		TotalRevenue      float64 `json:"total_revenue"`
	}
	decodeBody(t, resp, &summary)

	assert.Equal(t, int64(9), summary.TotalEvents)
	assert.Equal(t, int64(2), summary.TotalSessions)
	assert.Equal(t, int64(2), summary.FunnelEntries)
	assert.Equal(t, int64(1), summary.Purchases)
	assert.InDelta(t, 0.5, summary.OverallConversion, 1e-9)
	assert.InDelta(t, 120.50, summary.TotalRevenue, 1e-9)
}

func TestHealthEndpoint(t *testing.T) {
	app := testsupport.CreateTestApp(t)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])
}
