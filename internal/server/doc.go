// Package server implements the HTTP API of the flow-node engine
//
// This package provides REST endpoints for starting and inspecting
// processes, delivering triggers and messages, working human task lists,
// operator actions on failed instances, and a WebSocket stream of engine
// notifications
package server
