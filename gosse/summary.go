package main

// RunSummary stores the main results of a run for the JSON output.
type RunSummary struct {
	Version        string             `json:"version,omitempty"`
	CommandLine    []string           `json:"commandLine,omitempty"`
	NThreads       int                `json:"nThreads,omitempty"`
	NStates        int                `json:"nStates"`
	MaxLnL         float64            `json:"maxLnL"`
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	NCalls         int                `json:"likelihoodCalls"`
	Time           float64            `json:"time,omitempty"`
}
