// Package config defines the typed UserConfig shapes the core consumes.
// Loading config from CLI flags or YAML/JSON files is out of scope for the
// core; only the struct shapes and their yaml tags — for the external
// loader to populate — live here.
package config

// ModelSelectionStrategy controls how a worker picks a model name for a
// request when endpoint.model_names has more than one entry.
type ModelSelectionStrategy string

const (
	ModelSelectionRoundRobin    ModelSelectionStrategy = "round_robin"
	ModelSelectionRandom        ModelSelectionStrategy = "random"
	ModelSelectionModalityAware ModelSelectionStrategy = "modality_aware"
)

// ExportLevel controls how much of the run's raw data is written as
// artifacts.
type ExportLevel string

const (
	ExportSummary ExportLevel = "SUMMARY"
	ExportRecords ExportLevel = "RECORDS"
	ExportRaw     ExportLevel = "RAW"
)

// EndpointConfig describes the target inference server.
type EndpointConfig struct {
	Type                   string                 `yaml:"type"`
	BaseURL                string                 `yaml:"base_url"`
	CustomEndpoint         *string                `yaml:"custom_endpoint,omitempty"`
	Streaming              bool                   `yaml:"streaming"`
	ModelNames             []string               `yaml:"model_names"`
	ModelSelectionStrategy ModelSelectionStrategy `yaml:"model_selection_strategy"`
	EndpointParams         map[string]string      `yaml:"endpoint_params,omitempty"`
}

// LoadGenConfig describes the credit-issuance scheduling parameters. It
// overlaps pkg/timing.Config but does not mirror it one-for-one: each has
// fields the other lacks (pkg/timing.Config is built from this at run
// setup, outside core scope).
type LoadGenConfig struct {
	TimingMode               string   `yaml:"timing_mode"`
	RequestRate              *float64 `yaml:"request_rate,omitempty"`
	RequestRateMode          string   `yaml:"request_rate_mode,omitempty"`
	RequestCount             int64    `yaml:"request_count"`
	WarmupRequestCount       int64    `yaml:"warmup_request_count"`
	BenchmarkDurationSec     *float64 `yaml:"benchmark_duration,omitempty"`
	BenchmarkGracePeriodSec  float64  `yaml:"benchmark_grace_period"`
	Concurrency              *int     `yaml:"concurrency,omitempty"`
	RequestCancellationRate  float64  `yaml:"request_cancellation_rate"`
	RequestCancellationDelay float64  `yaml:"request_cancellation_delay"`
}

// InputConfig describes dataset sourcing, owned by the (out-of-scope)
// dataset provider but threaded through so fixed-schedule offsets reach
// pkg/timing.
type InputConfig struct {
	File                      *string `yaml:"file,omitempty"`
	CustomDatasetType         *string `yaml:"custom_dataset_type,omitempty"`
	RandomSeed                *int64  `yaml:"random_seed,omitempty"`
	FixedScheduleAutoOffset   bool    `yaml:"fixed_schedule_auto_offset,omitempty"`
	FixedScheduleStartOffset  *int64  `yaml:"fixed_schedule_start_offset,omitempty"`
	FixedScheduleEndOffset    *int64  `yaml:"fixed_schedule_end_offset,omitempty"`
}

// OutputConfig describes how run artifacts are exported.
type OutputConfig struct {
	ArtifactDirectory    string      `yaml:"artifact_directory"`
	ExportLevel          ExportLevel `yaml:"export_level"`
	SliceDurationSec     *float64    `yaml:"slice_duration,omitempty"`
	ShowInternalMetrics  bool        `yaml:"show_internal_metrics"`
}

// UserConfig is the top-level configuration the core is handed at startup.
type UserConfig struct {
	Endpoint    EndpointConfig     `yaml:"endpoint"`
	LoadGen     LoadGenConfig      `yaml:"loadgen"`
	Input       InputConfig        `yaml:"input"`
	Output      OutputConfig       `yaml:"output"`
	GoodputSLOs map[string]float64 `yaml:"goodput_slos,omitempty"`
}
