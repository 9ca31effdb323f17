package agent

import "context"

// AgentIO is the single injected collaborator replacing the source's many
// setXxxCallback(fn) registrations (§9 design notes). A worker constructs
// one implementation per session and hands it to every C2-C8 component
// that needs to talk to the UI.
type AgentIO interface {
	ApprovalUI

	// Broadcast relays a named event to the UI, enriched with the
	// session id by the Worker Manager (§4.8).
	Broadcast(channel string, data any)

	// FlashWindows and ShowTaskWindow request window-manager-level
	// attention from the desktop host; out of scope to implement here,
	// just a call the loop is allowed to make.
	FlashWindows()
	ShowTaskWindow()

	// AskUser backs the ask_to_user tool and the Planner's own
	// ask_to_user detour: it blocks for the user's answer to question.
	AskUser(ctx context.Context, question string) (string, error)
}
