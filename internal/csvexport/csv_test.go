package csvexport

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/univers/internal/export"
	"github.com/tejusbharadwaj/univers/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func singleModelResult() *export.Result {
	inverter := models.ModelDescriptor{ID: "Inverter"}
	return &export.Result{
		Models: []export.ModelOutcome{{Model: inverter, Rows: 2, Chunks: 2}},
		Rows: []models.DataRow{
			{
				ModelID: "Inverter", AssetID: "inv-1", AssetName: "INV 1", Timestamp: t0,
				Fields: map[string]any{"power": json.Number("12.5"), "temp": 41.0, "online": true},
			},
			{
				ModelID: "Inverter", AssetID: "inv-1", AssetName: "INV 1", Timestamp: t0.Add(time.Hour),
				Fields: map[string]any{"power": 0.1, "status": "fault, code 7", "temp": nil},
			},
		},
	}
}

func TestMarshal(t *testing.T) {
	out, err := Marshal(singleModelResult(), Options{})
	require.NoError(t, err)

	want := "asset_id,asset_name,timestamp,online,power,status,temp\n" +
		"inv-1,INV 1,2024-01-01T00:00:00Z,true,12.5,,41\n" +
		"inv-1,INV 1,2024-01-01T01:00:00Z,,0.1,\"fault, code 7\",\n"
	assert.Equal(t, want, string(out))
}

func TestMarshalMultipleModelsAddsModelColumn(t *testing.T) {
	res := &export.Result{
		Models: []export.ModelOutcome{
			{Model: models.ModelDescriptor{ID: "A"}},
			{Model: models.ModelDescriptor{ID: "B"}},
		},
		Rows: []models.DataRow{
			{ModelID: "A", AssetID: "a-1", Timestamp: t0, Fields: map[string]any{"x": 1}},
			{ModelID: "B", AssetID: "b-1", Timestamp: t0.In(time.FixedZone("CET", 3600)), Fields: map[string]any{"y": int64(2)}},
		},
	}

	out, err := Marshal(res, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"model_id,asset_id,asset_name,timestamp,x,y\n"+
			"A,a-1,,2024-01-01T00:00:00Z,1,\n"+
			"B,b-1,,2024-01-01T00:00:00Z,,2\n",
		string(out))
}

func TestMarshalEmptyResultHasHeaderOnly(t *testing.T) {
	res := &export.Result{Models: []export.ModelOutcome{{Model: models.ModelDescriptor{ID: "A"}}}}

	out, err := Marshal(res, Options{})
	require.NoError(t, err)
	assert.Equal(t, "asset_id,asset_name,timestamp\n", string(out))
}

func TestMarshalIsDeterministic(t *testing.T) {
	for _, compression := range []string{None, Gzip, Zstd} {
		t.Run("compression="+compression, func(t *testing.T) {
			first, err := Marshal(singleModelResult(), Options{Compression: compression})
			require.NoError(t, err)
			second, err := Marshal(singleModelResult(), Options{Compression: compression})
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestMarshalCompressed(t *testing.T) {
	plain, err := Marshal(singleModelResult(), Options{})
	require.NoError(t, err)

	gz, err := Marshal(singleModelResult(), Options{Compression: Gzip})
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(gz))
	require.NoError(t, err)
	unzipped, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, plain, unzipped)

	zs, err := Marshal(singleModelResult(), Options{Compression: Zstd})
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	unzstd, err := dec.DecodeAll(zs, nil)
	require.NoError(t, err)
	assert.Equal(t, plain, unzstd)
}

func TestMarshalRejectsUnknownCompression(t *testing.T) {
	_, err := Marshal(singleModelResult(), Options{Compression: "brotli"})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Concorde", "out.csv")

	require.NoError(t, WriteFile(path, singleModelResult(), Options{}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := Marshal(singleModelResult(), Options{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileName(t *testing.T) {
	end := t0.Add(48 * time.Hour)

	assert.Equal(t,
		filepath.Join("Concorde", "Concorde_20240101T0000Z_20240103T0000Z.csv"),
		FileName("Concorde", t0, end, None))
	assert.Equal(t,
		filepath.Join("Wind_Farm_2", "Wind_Farm_2_20240101T0000Z_20240103T0000Z.csv.gz"),
		FileName("Wind Farm/2", t0, end, Gzip))
	assert.Equal(t,
		filepath.Join("export", "export_20240101T0000Z_20240103T0000Z.csv.zst"),
		FileName("", t0, end, Zstd))
}
