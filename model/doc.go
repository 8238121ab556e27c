// Package model defines stable boundary types for API layers.
//
// These structs are the only types intended for direct JSON serialization by
// consumers of the HTTP API. Ledger values are rendered as base58 strings and
// digests as lowercase hex.
package model
