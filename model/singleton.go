package model

import "sync/atomic"

var global atomic.Pointer[Registry]

// Global returns the process-wide registry, installing the default registry
// if none was set.
func Global() *Registry {
	if r := global.Load(); r != nil {
		return r
	}
	global.CompareAndSwap(nil, NewDefaultRegistry())
	return global.Load()
}

// InitGlobal installs r unless a registry is already in place. It reports
// whether r was installed.
func InitGlobal(r *Registry) bool {
	return global.CompareAndSwap(nil, r)
}

// ResetGlobal clears the process-wide registry.
func ResetGlobal() {
	global.Store(nil)
}
