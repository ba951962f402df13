// Package transport holds what the outbound transports share: error
// classification into resilience.Permanent / resilience.Retryable and payload
// decoding.
//
// Each subpackage implements delivery.Transport for one outbox kind:
//
//   - webhook: signed HTTP POST
//   - email: HTTP email provider API
//   - export: S3 PutObject
//   - payment: payment provider client and the compensation transport
package transport
