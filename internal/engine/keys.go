package engine

import (
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/pkg/api"
)

const (
	processPrefix   = "proc"
	rootPrefix      = "proc-root"
	nodePrefix      = "node"
	nodeIndexPrefix = "nodeidx"
	unstablePrefix  = "unstable"
	timerPrefix     = "timer"
	containerPrefix = "container"
	joinPrefix      = "join"
	stoppingPrefix  = "stopping"
)

func processKey(pid api.ProcessID) string {
	return store.Key(processPrefix, string(pid))
}

func rootKey(root, pid api.ProcessID) string {
	return store.Key(rootPrefix, string(root), string(pid))
}

func rootKeys(root api.ProcessID) string {
	return store.Prefix(rootPrefix, string(root))
}

func nodeKey(pid api.ProcessID, nid api.NodeID) string {
	return store.Key(nodePrefix, string(pid), string(nid))
}

func nodeKeys(pid api.ProcessID) string {
	return store.Prefix(nodePrefix, string(pid))
}

func nodeIndexKey(nid api.NodeID) string {
	return store.Key(nodeIndexPrefix, string(nid))
}

func unstableKey(nid api.NodeID) string {
	return store.Key(unstablePrefix, string(nid))
}

func timerKey(nid api.NodeID) string {
	return store.Key(timerPrefix, string(nid))
}

func containerKey(nid api.NodeID) string {
	return store.Key(containerPrefix, string(nid))
}

func joinKey(pid api.ProcessID, el api.ElementID) string {
	return store.Key(joinPrefix, string(pid), string(el))
}

func terminatingKey(pid api.ProcessID) string {
	return store.Key(stoppingPrefix, string(pid))
}
