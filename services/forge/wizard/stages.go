// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wizard

// Stage identifies where a conversation is in the build flow. The string
// values are wire-visible: clients key their rendering off them.
type Stage string

// Conversation stages, in the only order they may be visited. AutoDiscovery
// runs synchronously inside the turn that enters it and is never the stage a
// session waits in; the two self-loops are the greeting menu retry and the
// confirmation retry.
const (
	StageInitialGreeting Stage = "initial_greeting"
	StageIntentCapture   Stage = "intent_capture"
	StageAutoDiscovery   Stage = "auto_discovery"
	StageConfirmation    Stage = "confirmation"
	StageComplete        Stage = "complete"
)

// stageOrder maps each stage to its position in the forward-only flow.
var stageOrder = map[Stage]int{
	StageInitialGreeting: 0,
	StageIntentCapture:   1,
	StageAutoDiscovery:   2,
	StageConfirmation:    3,
	StageComplete:        4,
}

// CanAdvance reports whether moving from one stage to another follows the
// fixed forward order. Equal stages are allowed (self-loop retries).
func CanAdvance(from, to Stage) bool {
	a, okA := stageOrder[from]
	b, okB := stageOrder[to]
	return okA && okB && b >= a
}
