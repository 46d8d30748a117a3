package metrics

import (
	"testing"
	"time"
)

func TestObserversAreSafeBeforeAndAfterInit(t *testing.T) {
	// Before Init every helper must be a no-op rather than a panic.
	ObserveJob(OutcomeSuccess)
	ObserveClaim("empty")
	ObserveSearchDuration(time.Second)
	ObserveSearchRetry()
	SetQueueDepth(3)
	SetBrowserActive(true)

	Init()
	Init() // idempotent

	ObserveJob(OutcomeBlocked)
	ObserveClaim("job")
	ObserveSearchDuration(2 * time.Second)
	ObserveSearchRetry()
	SetQueueDepth(0)
	SetBrowserActive(false)
}
