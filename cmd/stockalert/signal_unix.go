//go:build unix

package main

import (
	"os"
	"syscall"
)

// triggerSignals make a running serve process start a batch now.
var triggerSignals = []os.Signal{syscall.SIGUSR1}
