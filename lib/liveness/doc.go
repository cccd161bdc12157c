// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness tracks drone health from heartbeats.
//
// [MonitorDroneState] listens to live heartbeats and to drone metadata
// on the world-state stream. Either refreshes a drone's last-seen
// time. A ticker re-evaluates every tracked drone each interval:
//
//	online   last seen within 1x the interval
//	suspect  last seen within 3x the interval
//	offline  beyond that
//
// The monitor only observes. It never publishes world-state messages
// and never changes the world tree.
package liveness
