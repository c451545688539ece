package alert

import (
	"github.com/rs/zerolog/log"
)

// Sink is the binary output signal, a buzzer or relay.
type Sink interface {
	Set(on bool) error
}

// Notice describes an alert transition for displays.
type Notice struct {
	Kind        Mode   `json:"kind"`
	Prayer      string `json:"prayer,omitempty"`
	Time        string `json:"time,omitempty"`
	MinutesLeft int    `json:"minutes_left,omitempty"`
	Date        string `json:"date,omitempty"`
}

// Notifier is implemented by sinks that can also carry notices.
type Notifier interface {
	Notify(n Notice) error
}

// LogSink writes level changes and notices to the log. It is the fallback
// when no hardware or broker is configured.
type LogSink struct{}

func (LogSink) Set(on bool) error {
	log.Debug().Bool("on", on).Msg("alert output")
	return nil
}

func (LogSink) Notify(n Notice) error {
	log.Info().
		Str("kind", string(n.Kind)).
		Str("prayer", n.Prayer).
		Str("time", n.Time).
		Int("minutes_left", n.MinutesLeft).
		Msg("alert")
	return nil
}

// Multi fans out to several sinks. Errors are logged per sink.
type Multi []Sink

func (m Multi) Set(on bool) error {
	for _, s := range m {
		if err := s.Set(on); err != nil {
			log.Error().Err(err).Msg("alert sink write failed")
		}
	}
	return nil
}

func (m Multi) Notify(n Notice) error {
	for _, s := range m {
		if nt, ok := s.(Notifier); ok {
			if err := nt.Notify(n); err != nil {
				log.Error().Err(err).Msg("alert notice failed")
			}
		}
	}
	return nil
}
