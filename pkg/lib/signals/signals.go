// Package signals ties process shutdown signals to a context.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	root context.Context
	once sync.Once
)

// Context returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal terminates the process with exit code 1.
func Context() context.Context {
	once.Do(install)
	return root
}

func install() {
	var cancel context.CancelFunc
	root, cancel = context.WithCancel(context.Background())

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		<-sig
		os.Exit(1) // a second signal skips the graceful path
	}()
}
