package cf

import (
	"errors"
	"fmt"
)

// ChallengeError is returned when a response turns out to be a cf
// challenge page rather than the requested resource
type ChallengeError struct {
	URL        string
	StatusCode int
	Indicators []string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("cf_challenge: status=%d url=%s", e.StatusCode, e.URL)
}

// IsChallenge checks if err wraps a ChallengeError
func IsChallenge(err error) (*ChallengeError, bool) {
	var cfErr *ChallengeError
	if errors.As(err, &cfErr) {
		return cfErr, true
	}
	return nil, false
}
