package bootstrap

import (
	"github.com/kbukum/resilience-core/config"
)

// Config is the constraint for application configuration types. Any struct
// embedding config.ServiceConfig satisfies it through promoted methods, as
// long as it overrides ApplyDefaults/Validate to cover its own sections.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
