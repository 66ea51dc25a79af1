// Package apitest provides an in-process fake of the Poseidon gateway for
// tests that exercise the real API client.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tejusbharadwaj/univers/internal/api"
	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/models"
)

const (
	AccessKey = "0b1e7a2c-5d4f-4c3b"
	SecretKey = "9f8e7d6c-5b4a-3210"
	OrgID     = "o15000000000000001"
)

// ValueFunc produces the sample of one point of an asset at ts.
type ValueFunc func(assetID, point string, ts time.Time) float64

// Gateway serves thing-model search, device search and raw history for a
// fixed set of models. Requests must carry a valid signature.
type Gateway struct {
	Server *httptest.Server
	Value  ValueFunc

	mu       sync.Mutex
	models   []models.ModelDescriptor
	calls    map[string]int
	failures []int
}

func NewGateway(t testing.TB, descriptors ...models.ModelDescriptor) *Gateway {
	g := &Gateway{
		models: descriptors,
		calls:  make(map[string]int),
		Value: func(assetID, point string, ts time.Time) float64 {
			return float64(ts.Unix()%1000) + float64(len(assetID)+len(point))/10
		},
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serveHTTP))
	t.Cleanup(g.Server.Close)
	return g
}

// Project returns credentials accepted by the gateway.
func (g *Gateway) Project(name string) config.ProjectConfig {
	return config.ProjectConfig{
		Name:       name,
		AccessKey:  AccessKey,
		SecretKey:  SecretKey,
		APIGateway: g.Server.URL,
		OrgID:      OrgID,
	}
}

// FailRaw makes the next raw-history calls answer with the given statuses.
func (g *Gateway) FailRaw(statuses ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, statuses...)
}

// Calls returns how often the path was requested.
func (g *Gateway) Calls(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[path]
}

func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.calls[r.URL.Path]++
	g.mu.Unlock()

	timestamp := r.Header.Get("timestamp")
	if r.Header.Get("Authorization") != "AccessKey "+AccessKey ||
		r.Header.Get("signature") != api.Sign(SecretKey, timestamp) {
		writeEnvelope(w, 401, "signature mismatch", nil)
		return
	}
	if r.URL.Query().Get("orgId") != OrgID {
		writeEnvelope(w, 403, "no permission for organization", nil)
		return
	}

	switch r.URL.Path {
	case "/model-service/v2.1/thing-models":
		g.thingModels(w, r)
	case "/connect-service/v2.1/devices":
		g.devices(w, r)
	case "/tsdb-service/v2.1/raw":
		g.raw(w, r)
	default:
		http.NotFound(w, r)
	}
}

type pageRequest struct {
	Pagination struct {
		PageNo   int `json:"pageNo"`
		PageSize int `json:"pageSize"`
	} `json:"pagination"`
}

func page[T any](r *http.Request, all []T) []T {
	var req pageRequest
	json.NewDecoder(r.Body).Decode(&req)
	if req.Pagination.PageNo < 1 || req.Pagination.PageSize < 1 {
		return all
	}
	from := (req.Pagination.PageNo - 1) * req.Pagination.PageSize
	if from >= len(all) {
		return nil
	}
	to := from + req.Pagination.PageSize
	if to > len(all) {
		to = len(all)
	}
	return all[from:to]
}

func (g *Gateway) thingModels(w http.ResponseWriter, r *http.Request) {
	var items []map[string]interface{}
	for _, m := range g.models {
		points := make(map[string]interface{}, len(m.Identifiers))
		for _, id := range m.Identifiers {
			points[id] = map[string]string{"identifier": id}
		}
		items = append(items, map[string]interface{}{
			"modelId":       m.ID,
			"modelIdPath":   "/" + m.ID,
			"name":          map[string]string{"defaultValue": m.Name},
			"measurepoints": points,
		})
	}
	writeEnvelope(w, 0, "OK", map[string]interface{}{"items": page(r, items)})
}

func (g *Gateway) devices(w http.ResponseWriter, r *http.Request) {
	var items []map[string]interface{}
	for _, m := range g.models {
		for _, a := range m.Assets {
			items = append(items, map[string]interface{}{
				"assetId":    a.ID,
				"modelId":    m.ID,
				"deviceName": map[string]string{"defaultValue": a.Name},
			})
		}
	}
	writeEnvelope(w, 0, "OK", map[string]interface{}{"items": page(r, items)})
}

func (g *Gateway) raw(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	var status int
	if len(g.failures) > 0 {
		status, g.failures = g.failures[0], g.failures[1:]
	}
	g.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(http.StatusText(status)))
		return
	}

	var req struct {
		PointIDs  string `json:"pointIds"`
		AssetIDs  string `json:"assetIds"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Interval  int    `json:"interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, 400, err.Error(), nil)
		return
	}
	start, err1 := time.Parse(time.RFC3339, req.StartTime)
	end, err2 := time.Parse(time.RFC3339, req.EndTime)
	if err1 != nil || err2 != nil || req.Interval <= 0 {
		writeEnvelope(w, 400, "invalid time range", nil)
		return
	}

	step := time.Duration(req.Interval) * time.Second
	var items []map[string]interface{}
	// the gateway's range is inclusive of endTime
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		for _, asset := range strings.Split(req.AssetIDs, ",") {
			for _, point := range strings.Split(req.PointIDs, ",") {
				items = append(items, map[string]interface{}{
					"assetId":   asset,
					"timestamp": ts.UnixMilli(),
					"localtime": ts.Format("2006-01-02 15:04:05"),
					point:       g.Value(asset, point, ts),
				})
			}
		}
	}
	writeEnvelope(w, 0, "OK", map[string]interface{}{"items": items})
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}
