// Package bootstrap orchestrates the service lifecycle: typed configuration,
// ordered component startup, configure callbacks that wire business services
// onto started infrastructure, and graceful shutdown on OS signals.
package bootstrap
