package configuration

import (
	"context"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	AdminPort       int           `env:"ADMIN_PORT,default=8080"`    // Port of the process admin API
	Host            string        `env:"HOST,default=localhost"`     // Interface mock providers bind to
	PactDir         string        `env:"PACT_DIR,default=pacts"`     // Directory pact files are written to
	LogDir          string        `env:"LOG_DIR"`                    // Per session log files, stderr when empty
	SpecVersion     string        `env:"SPEC_VERSION,default=2.0.0"` // Pact specification version written to documents
	Strict          bool          `env:"STRICT,default=true"`        // Refuse to write pact files with missing interactions
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	WaitDelay       time.Duration `env:"WAIT_DELAY"`    // Default Delay for WaitForInteractions endpoint
	WaitDuration    time.Duration `env:"WAIT_DURATION"` // Default Duration for WaitForInteractions endpoint
}

func NewFromEnv() (Config, error) {
	ctx := context.Background()

	var config Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// SessionConfig returns the configuration of a mock provider session for the
// given pact.
func (c Config) SessionConfig(consumer, provider string, port int) pactmock.Config {
	return pactmock.Config{
		Consumer:        consumer,
		Provider:        provider,
		Host:            c.Host,
		Port:            port,
		PactDir:         c.PactDir,
		LogDir:          c.LogDir,
		SpecVersion:     c.SpecVersion,
		AllowPartial:    !c.Strict,
		ShutdownTimeout: c.ShutdownTimeout,
		WaitDelay:       c.WaitDelay,
		WaitDuration:    c.WaitDuration,
	}
}
