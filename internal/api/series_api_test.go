package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
	"github.com/tejusbharadwaj/univers/internal/models"
)

var inverter = models.ModelDescriptor{
	ID:          "Inverter",
	Identifiers: []string{"power", "temp"},
	Assets:      []models.Asset{{ID: "inv-1", Name: "INV 1"}, {ID: "inv-2", Name: "INV 2"}},
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func TestFetchPoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var got rawRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, rawPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{"assetId": "inv-2", "timestamp": ms(start.Add(15 * time.Minute)), "power": 12.5},
				map[string]interface{}{"assetId": "inv-1", "timestamp": ms(start), "power": 10},
				map[string]interface{}{"assetId": "inv-1", "timestamp": ms(start.Add(20 * time.Second)), "temp": 41.2, "localtime": "2024-01-01 00:00:20"},
				map[string]interface{}{"assetId": "inv-1", "timestamp": ms(start.Add(30 * time.Second)), "power": 99},
				// outside the half-open window
				map[string]interface{}{"assetId": "inv-1", "timestamp": ms(end), "power": 1},
				map[string]interface{}{"assetId": "inv-1", "timestamp": ms(start.Add(-time.Minute)), "power": 1},
				map[string]interface{}{"timestamp": ms(start), "power": 1},
			},
		})
	}))
	defer srv.Close()

	rows, err := newTestClient(t, srv.URL).FetchPoints(context.Background(), inverter, start, end, 15)
	require.NoError(t, err)

	assert.Equal(t, rawRequest{
		PointIDs:  "power,temp",
		AssetIDs:  "inv-1,inv-2",
		StartTime: "2024-01-01T00:00:00Z",
		EndTime:   "2024-01-01T01:00:00Z",
		Interval:  900,
		PageSize:  rawPageSize,
	}, got)

	require.Len(t, rows, 2)

	assert.Equal(t, "inv-1", rows[0].AssetID)
	assert.Equal(t, "INV 1", rows[0].AssetName)
	assert.Equal(t, "Inverter", rows[0].ModelID)
	assert.True(t, rows[0].Timestamp.Equal(start))
	assert.Equal(t, json.Number("10"), rows[0].Fields["power"])
	assert.Equal(t, json.Number("41.2"), rows[0].Fields["temp"])
	assert.NotContains(t, rows[0].Fields, "localtime")

	assert.Equal(t, "inv-2", rows[1].AssetID)
	assert.True(t, rows[1].Timestamp.Equal(start.Add(15*time.Minute)))
	assert.Equal(t, json.Number("12.5"), rows[1].Fields["power"])
}

func TestFetchPointsRejectsFullPage(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]interface{}, 0, rawPageSize)
		for i := 0; i < rawPageSize; i++ {
			items = append(items, map[string]interface{}{
				"assetId":   "inv-1",
				"timestamp": ms(start.Add(time.Duration(i) * 10 * time.Second)),
				"power":     i,
			})
		}
		writeEnvelope(w, map[string]interface{}{"items": items})
	}))
	defer srv.Close()

	rows, err := newTestClient(t, srv.URL).FetchPoints(context.Background(), inverter, start, end, 1)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, ErrPageFull)
	assert.NotErrorIs(t, err, ferrors.ErrTransientFetch)
	assert.NotErrorIs(t, err, ferrors.ErrAuthentication)
	assert.Contains(t, err.Error(), "Inverter")
	assert.Contains(t, err.Error(), "2024-01-01T00:00:00Z")
}

func TestFetchPointsSkipsEmptyModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows, err := c.FetchPoints(context.Background(), models.ModelDescriptor{ID: "Empty"}, start, start.Add(time.Hour), 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = c.FetchPoints(context.Background(), inverter, start, start, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPivotSlotsAlignToRangeStart(t *testing.T) {
	// a range starting off the hour still groups by interval from its start
	start := time.Date(2024, 1, 1, 0, 7, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	items := []map[string]interface{}{
		{"assetId": "inv-1", "timestamp": json.Number(formatMs(start.Add(9 * time.Minute))), "power": json.Number("1")},
		{"assetId": "inv-1", "timestamp": json.Number(formatMs(start.Add(10 * time.Minute))), "power": json.Number("2")},
	}

	rows := pivot(inverter, items, start, end, 10*time.Minute)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.Equal(start))
	assert.True(t, rows[1].Timestamp.Equal(start.Add(10*time.Minute)))
}

func TestPivotAdjacentRangesDoNotOverlap(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mid := start.Add(time.Hour)
	end := mid.Add(time.Hour)

	var items []map[string]interface{}
	for ts := start; ts.Before(end); ts = ts.Add(5 * time.Minute) {
		items = append(items, map[string]interface{}{"assetId": "inv-1", "timestamp": float64(ms(ts)), "power": 1.0})
	}

	whole := pivot(inverter, items, start, end, 5*time.Minute)
	first := pivot(inverter, items, start, mid, 5*time.Minute)
	second := pivot(inverter, items, mid, end, 5*time.Minute)

	assert.Len(t, whole, 24)
	assert.Equal(t, whole, append(first, second...))
}

func formatMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
