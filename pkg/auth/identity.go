package auth

// KeyClass is the privilege class an API key grants.
type KeyClass int

const (
	ClassUnauth KeyClass = iota
	ClassBackend
	ClassAdmin
)

// SecConfig mirrors the security-related configuration driving the
// request middleware.
type SecConfig struct {
	BackendKeys map[string]struct{}
	AdminKeys   map[string]struct{}
	RPS         float64
	Burst       int
}

// Open reports whether no API keys are configured at all; the middleware
// then runs in development mode and admits every caller.
func (c SecConfig) Open() bool {
	return len(c.BackendKeys) == 0 && len(c.AdminKeys) == 0
}
