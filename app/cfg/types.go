package cfg

type Cfg struct {
	// Storage configuration
	DataDir string

	// Marketplace configuration
	Provider  string
	UserAgent string
	NoFetch   bool

	// Application metadata
	Host    string
	Debug   bool
	Version string
}
