package exporter

// Endpoint is a data endpoint and the dataset its readings are appended to.
type Endpoint struct {
	Name    string
	Dataset string
	// Extra is merged into the request body.
	Extra map[string]any
	// FlattenMetrics expands nested {"value","timestamp"} metrics into column pairs.
	FlattenMetrics bool
}

// HistoryEndpoints are fetched in order for every vehicle during a historical export. The last
// one is the resume reference: a vehicle present in its dataset is treated as fully exported.
var HistoryEndpoints = []Endpoint{
	historyEndpoint("getgpshistory", nil),
	historyEndpoint("getbatterymetricshistory", nil),
	historyEndpoint("getdistancetravelled", nil),
	historyEndpoint("getfuelhistory", map[string]any{"inlitres": true}),
	historyEndpoint("getfuelused", nil),
}

// LiveEndpoints are polled once per vehicle per live cycle.
var LiveEndpoints = []Endpoint{
	{Name: "getlastgpsstatus", Dataset: "live_gps.csv"},
	{Name: "getlatestcan", Dataset: "live_can.csv", FlattenMetrics: true},
	{Name: "getlastfuelstatus", Dataset: "live_fuel.csv"},
}

func historyEndpoint(name string, extra map[string]any) Endpoint {
	return Endpoint{Name: name, Dataset: HistoryDataset(name), Extra: extra}
}

// HistoryDataset returns the dataset file name for a historical endpoint.
func HistoryDataset(endpoint string) string {
	return "historical_" + endpoint + ".csv"
}

// HistoryDatasets returns the dataset file names of all historical endpoints.
func HistoryDatasets() []string {
	names := make([]string, len(HistoryEndpoints))
	for i, ep := range HistoryEndpoints {
		names[i] = ep.Dataset
	}
	return names
}

// ResumeReference returns the dataset consulted by resumed historical runs.
func ResumeReference() string {
	return HistoryEndpoints[len(HistoryEndpoints)-1].Dataset
}
