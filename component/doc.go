// Package component defines the lifecycle interface shared by the service's
// infrastructure pieces and an ordered registry that starts them in
// registration order and stops them in reverse.
package component
