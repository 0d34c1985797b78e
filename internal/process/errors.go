package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while the process is up.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNoBinary is returned by Start when no executable is configured.
	ErrNoBinary = errors.New("process: no binary configured")
)

// RecoverableError lets an exit error opt out of restarts.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart should be attempted after err.
// Errors are recoverable unless they implement RecoverableError and say
// otherwise.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}
