// Package security keeps credentials out of logs and throttles clients of
// the gateway.
package security
