// Package pipeline runs bypass chains over generated payloads.
//
// # Architecture
//
// The Executor applies the steps of a chain in position order, feeding each
// module the artifact produced by the previous one:
//
//	stager ──generate──▶ artifact ──step 1──▶ ... ──step n──▶ artifact
//
// Execution stops at the first failing step. The error is a
// *domain.StepError carrying the chain id, the 1-based position and the
// module reference; no partial artifact is returned and earlier steps are not
// undone (they have no side effects outside the artifact).
//
// The Service facade sits in front of the executor. It resolves stager
// records, generates payloads, applies chain mutations through the storage
// port and records every outcome in the audit log.
package pipeline
