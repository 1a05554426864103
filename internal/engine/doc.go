// Package engine drives process instances by advancing their flow-node
// instances through the node lifecycle.
//
// Every step runs in one store transaction: it loads the instance, applies
// one trigger, and writes the resulting state together with any tokens,
// pending-task rows and successor instances it created. Steps that follow
// from a committed step are handed to the dispatcher, which runs them on a
// pool of workers and retries them when the store reports a conflict
package engine
