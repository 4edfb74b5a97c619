// Package sync coordinates bidirectional synchronization between the
// local store and the backend.
//
// Architecture:
//
//	Orchestrator          owns the sync cycle and the re-entrancy guard
//	  ├── cache.Manager   puzzle pool replenishment (cooldown gated)
//	  ├── ChallengeSync   daily challenge pull (today + rolling window)
//	  └── GameSync        game state push then pull
//
// A sync cycle runs steps in a fixed order: puzzle cache check, daily
// challenges, push of unsynced local game states, incremental pull of
// remote game states. The first failing step aborts the rest of the
// cycle; its error is recorded and exposed via Status. Only one cycle
// runs at a time. Calls that arrive while a cycle is in flight return
// immediately without queueing.
//
// Conflict policy is last-write-wins on updated_at with row
// granularity; on equal timestamps the local row wins. Pushes are
// per-row tolerant: one failing row is logged and skipped so the rest
// of the batch still syncs.
package sync
