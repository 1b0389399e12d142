// Package campaign implements campaign lifecycle management.
//
// Create runs as one ledger transaction: the risk score is computed, the
// campaign row is written with it, the escrow share of the budget is locked
// and an audit event is recorded. A failure at any step leaves no campaign
// behind. Campaigns are never deleted; completed is terminal.
//
// Storage goes through ledger.Store, implemented in repository/postgres/ and
// repository/memory/.
package campaign
