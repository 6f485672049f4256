package bootstrap

import (
	"github.com/kbukum/parstream/config"
	"github.com/kbukum/parstream/logger"
)

// Config is the interface constraint for application configuration types.
//
// Example:
//
//	type AppConfig struct {
//	    Base    config.BaseConfig `mapstructure:"base"`
//	    Logging logger.Config     `mapstructure:"logging"`
//	    Stream  stream.Config     `mapstructure:"stream"`
//	}
//
//	func (c *AppConfig) GetBaseConfig() *config.BaseConfig { return &c.Base }
//	func (c *AppConfig) GetLoggingConfig() *logger.Config  { return &c.Logging }
type Config interface {
	GetBaseConfig() *config.BaseConfig
	GetLoggingConfig() *logger.Config
	ApplyDefaults()
	Validate() error
}
