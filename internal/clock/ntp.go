package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog/log"
)

// NetworkTime obtains one network time reading.
type NetworkTime interface {
	Query(ctx context.Context) (time.Time, error)
}

// NTPSource queries a list of NTP servers in order and returns the first
// valid answer.
type NTPSource struct {
	Servers []string
	Timeout time.Duration
}

var _ NetworkTime = (*NTPSource)(nil)

func (s *NTPSource) Query(ctx context.Context) (time.Time, error) {
	if len(s.Servers) == 0 {
		return time.Time{}, errors.New("no ntp servers configured")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var lastErr error
	for _, host := range s.Servers {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			log.Debug().Err(err).Str("server", host).Msg("ntp query failed")
			lastErr = err
			continue
		}
		return time.Now().Add(resp.ClockOffset).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("all ntp servers failed: %w", lastErr)
}
