// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI watches the signed-in user's submissions:
//  1. [SubmissionListView] : Browse submissions, newest first, with verdicts folded in as they arrive
//  2. [DetailView] : Inspect one submission's result
//
// The (view) [WatchModel] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Verdicts and connection changes are pushed from other goroutines through [WatchModel.HandleVerdict] and
// [WatchModel.HandleState], which forward them to the program over a buffered channel without blocking the caller.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
