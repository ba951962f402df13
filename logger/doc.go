// Package logger provides structured logging backed by zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and request/tenant ids propagated through context.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("resilienced").WithComponent("delivery")
//	log.Warn("item dead-lettered", logger.Fields("outbox_id", id, "attempts", n))
package logger
