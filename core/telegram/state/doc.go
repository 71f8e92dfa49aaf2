// Package state holds per-conversation FSM state: the conversation key, the closed set of
// state variants a bot declares, the store contract with its in-memory backend, and the
// proxy handed to handlers during one dispatch.
package state
