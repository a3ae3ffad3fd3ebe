package core

import "strings"

// ModuleID is a dotted, namespaced module identifier such as
// "memory.sqlite" or "embedder.openai".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	_, name, found := strings.Cut(string(id), ".")
	if !found {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every module implements.
// Lifecycle behaviour is opted into through the interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
