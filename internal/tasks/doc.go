// package tasks implements long-running judging operations on top of the REST and push clients.
//
// The core abstraction is [Judge], which submits a solution, tracks the pending submission and waits for
// its verdict. Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks
