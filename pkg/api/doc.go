// Package api defines the core data types shared by the flow-node engine
//
// This package contains runtime instance types (process instances, flow-node
// instances, tokens, pending-task mappings), the read-only definition graph,
// triggers and step results, engine notifications, and HTTP messages
package api
