// Package profile mounts the pprof handlers on a gin engine.
package profile

import (
	"net/http/pprof"

	"github.com/gin-gonic/gin"
)

const prefix = "/debug/pprof"

// mounts records which handler groups RegisterHandlers should mount.
type mounts struct {
	index   bool
	cmdline bool
	profile bool
	symbol  bool
	trace   bool
}

// Option adjusts the set of mounted handlers.
type Option func(m *mounts)

func handlerMounts(options []Option) mounts {
	if len(options) == 0 {
		// Everything is mounted unless options narrow the set.
		return mounts{index: true, cmdline: true, profile: true, symbol: true, trace: true}
	}
	var m mounts
	for _, o := range options {
		o(&m)
	}
	return m
}

// RegisterHandlers mounts pprof handlers on the engine under
// /debug/pprof. With no options every handler is mounted.
func RegisterHandlers(engine *gin.Engine, options ...Option) {
	m := handlerMounts(options)

	if m.index {
		engine.GET(prefix+"/", gin.WrapF(pprof.Index))
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			engine.GET(prefix+"/"+name, gin.WrapH(pprof.Handler(name)))
		}
	}
	if m.cmdline {
		engine.GET(prefix+"/cmdline", gin.WrapF(pprof.Cmdline))
	}
	if m.profile {
		engine.GET(prefix+"/profile", gin.WrapF(pprof.Profile))
	}
	if m.symbol {
		engine.GET(prefix+"/symbol", gin.WrapF(pprof.Symbol))
		engine.POST(prefix+"/symbol", gin.WrapF(pprof.Symbol))
	}
	if m.trace {
		engine.GET(prefix+"/trace", gin.WrapF(pprof.Trace))
	}
}
