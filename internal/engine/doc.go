// Package engine implements the task lifecycle core: the transition table,
// the per-task lock map, the long-poll notifier, the façade operations, and
// the dispatcher and watchdog background loops. All task mutations in the
// process go through this package.
package engine
