// Package logger provides structured logging for parstream using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers carrying stream and fragment fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("stream")
//	log.Debug("fragment drained", logger.Fields(logger.FieldFragment, 3))
package logger
