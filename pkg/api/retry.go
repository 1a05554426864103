package api

type (
	// RetryConfig controls how transient step failures are retried
	RetryConfig struct {
		BackoffType string `json:"backoff_type,omitempty"`
		MaxRetries  int    `json:"max_retries,omitempty"`
		InitBackoff int64  `json:"init_backoff,omitempty"`
		MaxBackoff  int64  `json:"max_backoff,omitempty"`
	}
)

const (
	BackoffTypeFixed       = "fixed"
	BackoffTypeLinear      = "linear"
	BackoffTypeExponential = "exponential"
)

// IsValidBackoffType reports whether t names a supported backoff strategy
func IsValidBackoffType(t string) bool {
	switch t {
	case BackoffTypeFixed, BackoffTypeLinear, BackoffTypeExponential:
		return true
	default:
		return false
	}
}
