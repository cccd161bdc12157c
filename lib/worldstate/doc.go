// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package worldstate holds the in-memory model of every cluster, drone
// and backend the fleet bus has described, and the reducer that folds
// bus messages into it.
//
// A [WorldState] is an immutable snapshot. [Apply] never modifies its
// input: it returns a new snapshot that shares every untouched cluster,
// drone and backend with the old one, plus a [Change] describing what
// moved (or nil when the message was a duplicate). Readers can
// therefore keep a snapshot for as long as they like without holding
// any lock while the writer continues to apply messages.
//
// Entities exist implicitly. A cluster, drone or backend appears the
// first time a message names it and is never removed. Lookups
// ([WorldState.Cluster], [ClusterState.Drone], [ClusterState.Backend])
// never create anything and report a miss as (zero, false).
//
// Folding the same sequence of messages always yields the same tree,
// so replaying the bus from the beginning reconstructs the state of a
// live process exactly.
package worldstate
