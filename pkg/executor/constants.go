package executor

// Attempt bounds shared by the executor and the configuration
const (
	DefaultMaxAttempts = 3
	MaxAttemptsLimit   = 100
)
