// Package auth resolves bearer tokens to accounts.
//
// Identity is delegated entirely to the hosted provider: the relay never
// mints or refreshes credentials. The Firebase verifier checks ID token
// signatures against the project's public keys, and the Verifier
// interface lets the relay server and registry tests substitute a fake.
package auth
