package playback

import "github.com/rs/zerolog"

// Option configures a Service.
type Option func(*serviceImpl)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *serviceImpl) {
		s.log = l.With().Str("component", "playback").Logger()
	}
}

// WithDefaults sets the service-wide default play properties.
func WithDefaults(p PlayProps) Option {
	return func(s *serviceImpl) {
		s.defaults = p
	}
}
