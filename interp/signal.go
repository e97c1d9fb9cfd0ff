// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"os"
	"os/signal"
	"syscall"
)

// ForwardSignals relays the given signals, received by the interpreter
// process, to every process tracked by reg. The interpreter itself is not
// terminated by them, and its waits are retried rather than aborted.
//
// The returned function stops the forwarding and restores the default
// behaviour of the signals.
func ForwardSignals(reg *Registry, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if sig, ok := sig.(syscall.Signal); ok {
					reg.Broadcast(sig)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
