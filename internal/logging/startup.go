package logging

import (
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects the resolved client configuration and emits a
// single structured debug event describing how the CLI was configured.
// Secrets are never registered here; only their presence as a feature flag.
type StartupLogger struct {
	command     string
	version     string
	apiBaseURL  string
	configFile  string
	initElapsed time.Duration

	limits   map[string]string
	features map[string]bool
}

// NewStartupLogger creates a StartupLogger for the given subcommand
// (e.g. "upload", "status").
func NewStartupLogger(command string) *StartupLogger {
	return &StartupLogger{
		command:  command,
		limits:   make(map[string]string),
		features: make(map[string]bool),
	}
}

// Version sets the CLI version string.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// APIBaseURL records the backend the client talks to.
func (s *StartupLogger) APIBaseURL(u string) *StartupLogger {
	s.apiBaseURL = u
	return s
}

// ConfigFile records the YAML config file that was loaded, if any.
func (s *StartupLogger) ConfigFile(path string) *StartupLogger {
	s.configFile = path
	return s
}

// Limit registers a named limit (max upload size, poll interval, timeouts).
func (s *StartupLogger) Limit(name, value string) *StartupLogger {
	s.limits[name] = value
	return s
}

// Feature registers a boolean feature flag (e.g. "bearerAuth", "s3Archive").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// InitDuration records how long configuration and client setup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initElapsed = d
	return s
}

// Log emits the collected information as one DEBUG event.
func (s *StartupLogger) Log() {
	s.event(log.Debug())
}

func (s *StartupLogger) event(evt *zerolog.Event) {
	client := zerolog.Dict().
		Str("command", s.command).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(LevelEnvVar))
	if s.version != "" {
		client = client.Str("version", s.version)
	}
	evt = evt.Dict("client", client)

	if s.apiBaseURL != "" {
		evt = evt.Str("apiBaseUrl", s.apiBaseURL)
	}
	if s.configFile != "" {
		evt = evt.Str("configFile", s.configFile)
	}

	if len(s.limits) > 0 {
		evt = evt.Dict("limits", dictFromMap(s.limits))
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(s.features) {
			d = d.Bool(k, s.features[k])
		}
		evt = evt.Dict("features", d)
	}

	if s.initElapsed > 0 {
		evt = evt.Dur("initDuration", s.initElapsed)
	}

	evt.Msg("Client configured")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
