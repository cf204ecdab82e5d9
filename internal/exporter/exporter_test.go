package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
	"github.com/itarang/telematics-exporter/internal/client/tokencache"
	"github.com/itarang/telematics-exporter/internal/config"
	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/itarang/telematics-exporter/internal/record"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(req intellicar.Request) ([]*record.Record, error)

type fakeAPI struct {
	vehicles  []string
	listErr   error
	responses map[string]fetchFunc
	calls     []string
}

func (f *fakeAPI) ListVehicles(_ context.Context, _ string) ([]string, error) {
	if f.listErr != nil {
		return []string{}, f.listErr
	}
	return f.vehicles, nil
}

func (f *fakeAPI) Fetch(_ context.Context, _ string, req intellicar.Request) ([]*record.Record, error) {
	f.calls = append(f.calls, req.Endpoint+"/"+req.VehicleNo)
	respond, ok := f.responses[req.Endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", intellicar.ErrSoftMiss, req.Endpoint)
	}
	records, err := respond(req)
	for _, r := range records {
		r.SetVehicleNo(req.VehicleNo)
	}
	return records, err
}

type staticToken struct {
	token string
	err   error
}

func (s staticToken) GetToken(context.Context, string) (string, error) {
	return s.token, s.err
}

func (staticToken) Invalidate(string) {}

type countingTokens struct {
	staticToken
	invalidated []string
}

func (c *countingTokens) Invalidate(key string) {
	c.invalidated = append(c.invalidated, key)
}

func rec(kv ...string) *record.Record {
	r := record.New()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

func newTestExporter(t *testing.T, api API, tokens TokenSource, opts ...Option) (*Exporter, *dataset.Writer) {
	t.Helper()
	writer := dataset.NewWriter(t.TempDir())
	e, err := New(api, tokens, "account:test", writer, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return e, writer
}

func readDataset(t *testing.T, w *dataset.Writer, name string) string {
	t.Helper()
	data, err := os.ReadFile(w.Path(name))
	require.NoError(t, err)
	return string(data)
}

func TestHistoryScenarioAgainstAPI(t *testing.T) {
	var fuelBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "gettoken":
			_, _ = w.Write([]byte(`{"status":"SUCCESS","data":{"token":"tok"}}`))
		case "listvehicledevicemapping":
			_, _ = w.Write([]byte(`{"status":"SUCCESS","data":[{"vehicleno":"MH12AB1234","deviceno":"D1"}]}`))
		case "getfuelhistory":
			_ = json.NewDecoder(r.Body).Decode(&fuelBody)
			_, _ = w.Write([]byte(`{"status":"SUCCESS","data":[{"starttime":1700000000,"litres":5.2},{"starttime":1700000000,"litres":5.2}]}`))
		default:
			_, _ = w.Write([]byte(`{"status":"FAILURE","msg":"no data"}`))
		}
	}))
	defer srv.Close()

	settings := &config.Settings{IntellicarBaseURL: srv.URL, IntellicarUsername: "u", IntellicarPassword: "p"}
	client, err := intellicar.NewClient(settings, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	tokens := tokencache.New(time.Hour, time.Hour, client)
	e, writer := newTestExporter(t, client, tokens)

	summary, err := e.RunHistory(context.Background(), HistoryOptions{
		Window: intellicar.Window{Start: 1700000000000, End: 1700003600000},
	})
	require.NoError(t, err)
	assert.Equal(t, "MH12AB1234", fuelBody["vehicleno"])
	assert.Equal(t, true, fuelBody["inlitres"])
	assert.EqualValues(t, 1700000000000, fuelBody["starttime"])
	assert.Equal(t, 1, summary.Vehicles)
	assert.Equal(t, map[string]int{"historical_getfuelhistory.csv": 2}, summary.Rows)
	assert.Equal(t, "starttime,litres,vehicleno\n1700000000,5.2,MH12AB1234\n1700000000,5.2,MH12AB1234\n",
		readDataset(t, writer, "historical_getfuelhistory.csv"))
	assert.NoFileExists(t, writer.Path("historical_getgpshistory.csv"))

	require.NoError(t, RunMaintenance(context.Background(), writer, zerolog.Nop(), MaintenanceOptions{ConvertTime: true, Location: time.UTC}))
	assert.Equal(t, "starttime,litres,vehicleno\n2023-11-14 22:13:20,5.2,MH12AB1234\n2023-11-14 22:13:20,5.2,MH12AB1234\n",
		readDataset(t, writer, "historical_getfuelhistory.csv"))
}

func TestHistoryResumeSkipsProcessedVehicles(t *testing.T) {
	api := &fakeAPI{
		vehicles: []string{"A", "B", "C"},
		responses: map[string]fetchFunc{
			"getfuelused": func(intellicar.Request) ([]*record.Record, error) {
				return []*record.Record{rec("fuelused", "3.1")}, nil
			},
		},
	}
	e, writer := newTestExporter(t, api, staticToken{token: "tok"})
	require.NoError(t, os.WriteFile(writer.Path(ResumeReference()), []byte("fuelused,vehicleno\n1.0,A\n2.0,C\n"), 0o644))

	summary, err := e.RunHistory(context.Background(), HistoryOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)

	var want []string
	for _, ep := range HistoryEndpoints {
		want = append(want, ep.Name+"/B")
	}
	assert.Equal(t, want, api.calls)
	assert.Equal(t, "fuelused,vehicleno\n1.0,A\n2.0,C\n3.1,B\n", readDataset(t, writer, ResumeReference()))
}

func TestHistoryWithoutResumeProcessesEveryone(t *testing.T) {
	api := &fakeAPI{vehicles: []string{"A", "B"}}
	e, writer := newTestExporter(t, api, staticToken{token: "tok"})
	require.NoError(t, os.WriteFile(writer.Path(ResumeReference()), []byte("vehicleno\nA\n"), 0o644))

	summary, err := e.RunHistory(context.Background(), HistoryOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Skipped)
	assert.Len(t, api.calls, 2*len(HistoryEndpoints))
}

func TestHistoryAuthFailureIsFatal(t *testing.T) {
	api := &fakeAPI{vehicles: []string{"A"}}
	authErr := fmt.Errorf("failed to get new token: %w", &intellicar.AuthError{Payload: `{"status":"FAILURE"}`})
	e, writer := newTestExporter(t, api, staticToken{err: authErr})

	_, err := e.RunHistory(context.Background(), HistoryOptions{})
	require.Error(t, err)
	assert.True(t, IsAuthFailure(err))
	assert.Empty(t, api.calls)

	entries, err := os.ReadDir(filepath.Dir(writer.Path("x")))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryFleetFailureProcessesNothing(t *testing.T) {
	api := &fakeAPI{listErr: intellicar.ErrFleetLookup}
	tokens := &countingTokens{staticToken: staticToken{token: "tok"}}
	e, _ := newTestExporter(t, api, tokens)

	summary, err := e.RunHistory(context.Background(), HistoryOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Vehicles)
	assert.Empty(t, api.calls)
	assert.Equal(t, []string{"account:test"}, tokens.invalidated)
}

func TestHistoryRequestErrorsAreSkipped(t *testing.T) {
	api := &fakeAPI{
		vehicles: []string{"A"},
		responses: map[string]fetchFunc{
			"getgpshistory": func(intellicar.Request) ([]*record.Record, error) {
				return nil, errors.New("connection reset")
			},
			"getdistancetravelled": func(req intellicar.Request) ([]*record.Record, error) {
				assert.NotNil(t, req.Window)
				return []*record.Record{rec("distance", "12.5")}, nil
			},
			"getfuelhistory": func(req intellicar.Request) ([]*record.Record, error) {
				assert.Equal(t, true, req.Extra["inlitres"])
				return nil, fmt.Errorf("%w: empty", intellicar.ErrSoftMiss)
			},
		},
	}
	e, writer := newTestExporter(t, api, staticToken{token: "tok"})

	summary, err := e.RunHistory(context.Background(), HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, api.calls, len(HistoryEndpoints))
	assert.Equal(t, map[string]int{"historical_getdistancetravelled.csv": 1}, summary.Rows)
	assert.Equal(t, "distance,vehicleno\n12.5,A\n", readDataset(t, writer, "historical_getdistancetravelled.csv"))
}

func TestHistoryStopsOnCancel(t *testing.T) {
	api := &fakeAPI{vehicles: []string{"A", "B"}}
	e, _ := newTestExporter(t, api, staticToken{token: "tok"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RunHistory(ctx, HistoryOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.calls)
}

func TestLiveCycle(t *testing.T) {
	fetched := time.Date(2026, 10, 16, 12, 0, 0, 0, time.Local)
	api := &fakeAPI{
		vehicles: []string{"V1"},
		responses: map[string]fetchFunc{
			"getlastgpsstatus": func(req intellicar.Request) ([]*record.Record, error) {
				assert.Nil(t, req.Window)
				return []*record.Record{rec("lat", "18.5", "lng", "73.8")}, nil
			},
			"getlatestcan": func(req intellicar.Request) ([]*record.Record, error) {
				assert.True(t, req.FlattenMetrics)
				return []*record.Record{rec("soc_value", "81", "soc_timestamp", "1700000000000")}, nil
			},
		},
	}
	e, writer := newTestExporter(t, api, staticToken{token: "tok"}, WithClock(func() time.Time { return fetched }))

	summary, err := e.RunLiveCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"live_gps.csv": 1, "live_can.csv": 1}, summary.Rows)
	require.Contains(t, summary.LastFetch, "V1")
	assert.True(t, fetched.Equal(summary.LastFetch["V1"]))
	assert.Equal(t, []string{"getlastgpsstatus/V1", "getlatestcan/V1", "getlastfuelstatus/V1"}, api.calls)

	assert.Equal(t, "lat,lng,vehicleno,fetch_time\n18.5,73.8,V1,2026-10-16T12:00:00.000000\n", readDataset(t, writer, "live_gps.csv"))
	assert.Equal(t, "vehicleno,fetch_time,soc_value,soc_timestamp\nV1,2026-10-16T12:00:00.000000,81,1700000000000\n", readDataset(t, writer, "live_can.csv"))
	assert.NoFileExists(t, writer.Path("live_fuel.csv"))
}

func TestLiveCycleTokenFailure(t *testing.T) {
	e, _ := newTestExporter(t, &fakeAPI{}, staticToken{err: errors.New("unreachable")})

	_, err := e.RunLiveCycle(context.Background())
	require.Error(t, err)
}

func TestRunLiveReturnsOnCancel(t *testing.T) {
	api := &fakeAPI{vehicles: []string{"V1"}}
	e, _ := newTestExporter(t, api, staticToken{token: "tok"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.RunLive(ctx, time.Hour) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunLive did not stop after cancellation")
	}
	assert.Len(t, api.calls, len(LiveEndpoints))
}

func TestMaintenanceCleanThenConvert(t *testing.T) {
	writer := dataset.NewWriter(t.TempDir())
	name := HistoryDataset("getgpshistory")
	require.NoError(t, os.WriteFile(writer.Path(name), []byte("gpstime,lat\n1700000000000,18.5\n1700000000000,18.5\n"), 0o644))

	opts := MaintenanceOptions{Clean: true, ConvertTime: true, Location: time.UTC}
	assert.True(t, opts.Requested())
	require.NoError(t, RunMaintenance(context.Background(), writer, zerolog.Nop(), opts))
	assert.Equal(t, "gpstime,lat\n2023-11-14 22:13:20,18.5\n", readDataset(t, writer, name))
}

func TestMaintenanceNotRequested(t *testing.T) {
	assert.False(t, MaintenanceOptions{}.Requested())
}
