// Package domain holds the value types shared by services, repositories and
// handlers: campaigns and their escrow ledger, tracking bundles with their
// attribution events, and lift tests.
//
// Nothing here imports another internal package or touches I/O. Money is
// decimal.Decimal throughout; rounding to cents happens at the API edge.
package domain
