package rpc

import "github.com/importprune/prune/validate"

// Loader interception is inherently host-runtime-specific: the core only
// defines the validate.LoaderAdapter capability, and a concrete adapter for
// a particular language runtime registers itself here at process startup,
// the same way database/sql drivers register themselves via sql.Register
// rather than being compiled into the core.

var currentLoader validate.LoaderAdapter

// RegisterLoader installs the process-wide validate.LoaderAdapter used by
// Server.Validate. It is expected to be called once, from the init
// function of a host-runtime-specific adapter package external to this
// module.
func RegisterLoader(l validate.LoaderAdapter) { currentLoader = l }

// CurrentLoader returns the adapter most recently installed by
// RegisterLoader, or nil if none has been registered.
func CurrentLoader() validate.LoaderAdapter { return currentLoader }
