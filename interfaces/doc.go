// Package interfaces defines the ports and shared types of the policy
// escrow backend. It provides the contract between the ledger engine, the
// transaction gateway, blob storage, identity and auxiliary records without
// implementation details.
//
// The central port is KVStore, a transactional key-value store with
// per-key optimistic concurrency. The ledger engine is stateless against
// it, which is what lets the same engine run inside a replicated ledger
// runtime or against an embedded store in tests.
package interfaces
