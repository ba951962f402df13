// Package version reports the build version of resilienced.
//
// Version, commit and build time are set at link time; anything left unset
// is filled from the module's embedded VCS build info:
//
//	go build -ldflags "-X github.com/kbukum/resilience-core/version.Version=1.4.0" ./cmd/resilienced
package version
