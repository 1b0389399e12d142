// Package capital performs escrow lock, fund and release as indivisible steps.
//
// Every operation runs inside the caller's ledger.Tx and never opens its own
// transaction, so campaign creation and escrow locking commit or roll back
// together.
package capital
