package main

import (
	"github.com/kbukum/parstream/config"
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
	"github.com/kbukum/parstream/stream"
	"github.com/kbukum/parstream/validation"
)

// DemoConfig shapes the synthetic producer fleet.
type DemoConfig struct {
	// Producers is the number of concurrent producers.
	Producers int `mapstructure:"producers" validate:"gt=0"`
	// ItemsPerProducer is how many records each producer writes.
	ItemsPerProducer int `mapstructure:"items_per_producer" validate:"gt=0"`
	// BatchSize is the number of records per fragment; it is also the
	// fragment's admission weight.
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`
	// PayloadBytes is the payload size of each record.
	PayloadBytes int `mapstructure:"payload_bytes" validate:"gte=0"`
	// Rate limits each producer to this many records per second. Zero is
	// unlimited.
	Rate float64 `mapstructure:"rate" validate:"gte=0"`
}

// AppConfig is the full configuration of the demo binary.
type AppConfig struct {
	Base    config.BaseConfig          `mapstructure:"base"`
	Logging logger.Config              `mapstructure:"logging"`
	Stream  stream.Config              `mapstructure:"stream"`
	Meter   observability.MeterConfig  `mapstructure:"meter"`
	Tracer  observability.TracerConfig `mapstructure:"tracer"`
	Demo    DemoConfig                 `mapstructure:"demo"`
}

func (c *AppConfig) GetBaseConfig() *config.BaseConfig { return &c.Base }
func (c *AppConfig) GetLoggingConfig() *logger.Config  { return &c.Logging }

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Base.Name == "" {
		c.Base.Name = "parstream"
	}
	c.Base.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Stream.ApplyDefaults()
	if c.Meter.ServiceName == "" {
		c.Meter.ServiceName = c.Base.Name
	}
	if c.Meter.Environment == "" {
		c.Meter.Environment = c.Base.Environment
	}
	if c.Tracer.ServiceName == "" {
		c.Tracer.ServiceName = c.Base.Name
	}
	if c.Tracer.Environment == "" {
		c.Tracer.Environment = c.Base.Environment
	}
	if c.Tracer.SampleRate == 0 {
		c.Tracer.SampleRate = 1
	}
	if c.Demo.Producers == 0 {
		c.Demo.Producers = 4
	}
	if c.Demo.ItemsPerProducer == 0 {
		c.Demo.ItemsPerProducer = 1000
	}
	if c.Demo.BatchSize == 0 {
		c.Demo.BatchSize = min(100, int(c.Stream.BufferLimit))
	}
}

// Validate checks every section.
func (c *AppConfig) Validate() error {
	for _, err := range []error{
		c.Base.Validate(),
		c.Logging.Validate(),
		c.Stream.Validate(),
		validation.Validate(&c.Meter),
		validation.Validate(&c.Tracer),
		validation.Validate(&c.Demo),
	} {
		if err != nil {
			return err
		}
	}
	return validation.New().
		AtMost("demo.batch_size", int64(c.Demo.BatchSize), c.Stream.BufferLimit).
		Validate()
}
