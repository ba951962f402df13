// Package auth issues and verifies operator tokens for the admin API.
//
// Subpackages:
//
//   - auth/jwt      HMAC token service over a caller-defined claims type
//   - auth/authctx  request context propagation for verified claims
//
// Configuration:
//
//	auth:
//	  enabled: true
//	  jwt:
//	    secret: "${AUTH_JWT_SECRET}"
//	    issuer: "resilienced"
//	    token_ttl: "1h"
package auth
