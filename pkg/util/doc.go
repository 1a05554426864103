// Package util provides small generic data structures used by the engine:
// sets for transition tables and a path tree for hierarchical timer keys
package util
