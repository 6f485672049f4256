package stream

import (
	"github.com/kbukum/parstream/validation"
)

// Config is the file/env form of the stream parameters.
type Config struct {
	// ConcurrencyLimit bounds the number of simultaneously open fragments.
	ConcurrencyLimit int64 `mapstructure:"concurrency_limit" validate:"gt=0"`
	// BufferLimit bounds the aggregate weight of open fragments.
	BufferLimit int64 `mapstructure:"buffer_limit" validate:"gt=0"`
	// FairnessThreshold is the byte budget between flush loop yields.
	// Zero selects DefaultFairnessThreshold.
	FairnessThreshold int64 `mapstructure:"fairness_threshold" validate:"gte=0"`
	// YieldEveryItem forces the minimum threshold, yielding before every
	// available item. Used to exercise worst-case interleavings.
	YieldEveryItem bool `mapstructure:"yield_every_item"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = 16
	}
	if c.BufferLimit == 0 {
		c.BufferLimit = c.ConcurrencyLimit
	}
	if c.FairnessThreshold == 0 {
		c.FairnessThreshold = DefaultFairnessThreshold
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Threshold returns the effective fairness threshold.
func (c *Config) Threshold() int64 {
	if c.YieldEveryItem {
		return 0
	}
	return c.FairnessThreshold
}
