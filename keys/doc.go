// Package keys manages the ed25519 seeds that pay for and sign memo
// registrations.
//
// Seeds live on the local filesystem as hex text, one directory per
// identifier. Labeled subkeys are derived deterministically from the
// identifier's root seed, so a single backed-up root covers every wallet
// derived from it. Keypair files written by the ledger's reference CLI
// (a JSON array of 64 bytes) can be imported and exported.
package keys
