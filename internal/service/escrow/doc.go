// Package escrow implements brand-scoped escrow operations: the vault
// overview with liquidity classification, campaign funding, milestone
// release and the ledger history with running balance.
//
// Fund and release run in one ledger transaction with the ownership and
// balance checks made inside it, against rows locked for update. A campaign
// owned by another brand is reported as not found.
package escrow
