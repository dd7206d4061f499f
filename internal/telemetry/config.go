package telemetry

// Config controls the OTLP trace pipeline. The zero value disables
// tracing entirely; Init then installs no-op providers so call sites
// never have to branch.
type Config struct {
	Enabled bool

	// ServiceName and ServiceVersion become the service.* resource
	// attributes on every exported span.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/gRPC collector address, host:port.
	Endpoint string

	// Insecure dials the collector without TLS (local collectors).
	Insecure bool

	// SampleRate picks the head sampler: >=1 samples everything,
	// <=0 samples nothing, anything between is a trace-id ratio.
	SampleRate float64
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool

	// ServiceName is the application name in the Pyroscope UI;
	// ServiceVersion is attached as a tag.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes selects what to collect. Empty means
	// DefaultProfileTypes. See parseProfileType for the full set.
	ProfileTypes []string
}

// DefaultConfig returns the stock tracing configuration: disabled,
// pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "nlpipe",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// DefaultProfileTypes is the profile set used when a profiling config
// names none. CPU and heap cover the interesting behavior of a queue
// server; goroutines catch stuck workers. Kept in sync with the
// config package defaults.
func DefaultProfileTypes() []string {
	return []string{
		"cpu",
		"alloc_objects",
		"alloc_space",
		"inuse_objects",
		"inuse_space",
		"goroutines",
	}
}
