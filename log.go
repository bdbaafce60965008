package labelgraph

import (
	"io"
	"log"
	"time"
)

// SlowThreshold is the duration above which file and line lookups are
// reported by SlowWarning.
const SlowThreshold = 500 * time.Millisecond

// SlowWarning logs a warning when the operation that started at start took
// longer than SlowThreshold. It returns the elapsed time.
func SlowWarning(logger *log.Logger, start time.Time, what string) time.Duration {
	elapsed := time.Since(start)
	if elapsed > SlowThreshold && logger != nil {
		logger.Printf("warning: %s took %s; label analysis may slow down editing", what, elapsed.Round(time.Millisecond))
	}
	return elapsed
}

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }
