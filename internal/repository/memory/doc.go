// Package memory holds in-process implementations of the service
// repositories. They back unit tests and the server's no-database dev mode.
//
// Transactions copy the state on begin and swap it in on commit, holding a
// single mutex for the duration, so a failed callback leaves nothing behind
// and concurrent transactions are serialized.
package memory
