package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tejusbharadwaj/univers/internal/models"
)

const (
	rawPath     = "/tsdb-service/v2.1/raw"
	rawPageSize = 6000
)

type rawRequest struct {
	PointIDs  string `json:"pointIds"`
	AssetIDs  string `json:"assetIds"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Interval  int    `json:"interval"`
	PageSize  int    `json:"pageSize"`
}

// reserved keys of a raw item; every other key is a measure point id.
var reserved = map[string]bool{
	"assetId":   true,
	"timestamp": true,
	"localtime": true,
}

// FetchPoints retrieves raw history for all assets of a model in [start, end).
//
// The gateway returns one item per (asset, point, time). Items are pivoted into
// one row per asset and interval slot, where slots are aligned to start. Items
// outside [start, end) are dropped so adjacent ranges never share a row. A
// full page is reported as ErrPageFull rather than returned truncated.
func (c *Client) FetchPoints(ctx context.Context, model models.ModelDescriptor, start, end time.Time, intervalMinutes int) ([]models.DataRow, error) {
	if len(model.Assets) == 0 || len(model.Identifiers) == 0 || !start.Before(end) {
		return nil, nil
	}

	assetIDs := make([]string, len(model.Assets))
	for i, a := range model.Assets {
		assetIDs[i] = a.ID
	}

	req := rawRequest{
		PointIDs:  strings.Join(model.Identifiers, ","),
		AssetIDs:  strings.Join(assetIDs, ","),
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		Interval:  intervalMinutes * 60,
		PageSize:  rawPageSize,
	}

	var page searchPage[map[string]interface{}]
	if err := c.post(ctx, "tsdb_raw", rawPath, nil, req, &page); err != nil {
		return nil, err
	}
	if len(page.Items) >= rawPageSize {
		return nil, fmt.Errorf("%w: %d items for %s [%s, %s), lower export.max_points_per_call",
			ErrPageFull, len(page.Items), model.ID, req.StartTime, req.EndTime)
	}

	return pivot(model, page.Items, start, end, time.Duration(intervalMinutes)*time.Minute), nil
}

type slotKey struct {
	asset string
	at    int64
}

func pivot(model models.ModelDescriptor, items []map[string]interface{}, start, end time.Time, interval time.Duration) []models.DataRow {
	names := make(map[string]string, len(model.Assets))
	for _, a := range model.Assets {
		names[a.ID] = a.Name
	}

	start = start.UTC()
	rows := make(map[slotKey]*models.DataRow)
	for _, item := range items {
		assetID, _ := item["assetId"].(string)
		ms, ok := toMillis(item["timestamp"])
		if assetID == "" || !ok {
			continue
		}

		ts := time.UnixMilli(ms).UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		slot := ts
		if interval > 0 {
			slot = start.Add(ts.Sub(start).Truncate(interval))
		}

		key := slotKey{asset: assetID, at: slot.UnixMilli()}
		row, ok := rows[key]
		if !ok {
			row = &models.DataRow{
				ModelID:   model.ID,
				AssetID:   assetID,
				AssetName: names[assetID],
				Timestamp: slot,
				Fields:    make(map[string]any),
			}
			rows[key] = row
		}

		for k, v := range item {
			if reserved[k] {
				continue
			}
			// first sample in a slot wins
			if _, seen := row.Fields[k]; !seen {
				row.Fields[k] = v
			}
		}
	}

	out := make([]models.DataRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}

func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
