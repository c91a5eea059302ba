// Package notifications pushes pipeline milestones to ntfy.
//
// The scheduler publishes after its sequenced writes have landed, so a slow
// or unreachable ntfy server never delays task state. With no topic
// configured NewService returns a no-op, and individual events can be
// switched off in the [notifications] config section.
package notifications
