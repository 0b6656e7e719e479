package result

import (
	"log"
	"time"

	"github.com/beevik/ntp"
)

// Clock stamps trial records.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the local clock.
var SystemClock Clock = systemClock{}

type offsetClock struct {
	offset time.Duration
}

func (c offsetClock) Now() time.Time { return time.Now().Add(c.offset).UTC() }

// NewClock returns a clock corrected by the offset measured against server.
// When server is empty or cannot be reached the local clock is used.
func NewClock(server string) Clock {
	if server == "" {
		return SystemClock
	}
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: 5 * time.Second})
	if err == nil {
		err = resp.Validate()
	}
	if err != nil {
		log.Printf("warning: ntp server %s unavailable, using local clock: %v", server, err)
		return SystemClock
	}
	return offsetClock{offset: resp.ClockOffset}
}
