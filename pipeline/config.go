package pipeline

// Config holds the knobs shared by the pipeline stages.
type Config struct {
	// Model is the embedding model requested in every request record.
	Model string

	// MaxItemsPerChunk bounds the request records per chunk file.
	MaxItemsPerChunk int

	// FetchPageSize bounds how many pending rows are held in memory while
	// chunking.
	FetchPageSize int

	// MaxInputChars is the deterministic prefix cut applied to item text
	// before submission, keeping every input inside the service's
	// per-request token budget.
	MaxInputChars int

	// ReportInterval is how often progress is reported, in items.
	ReportInterval int

	// WorkDir is where chunk request files are written.
	WorkDir string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:            "text-embedding-3-small",
		MaxItemsPerChunk: 50000,
		FetchPageSize:    10000,
		MaxInputChars:    16000,
		ReportInterval:   10000,
		WorkDir:          "batchwork",
	}
}
