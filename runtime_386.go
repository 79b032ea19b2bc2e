//go:build 386

package main

import "runtime"

// iSH (iOS) emulates x86 in usermode and performs poorly with multiple
// goroutines, so the index reads one document at a time there.
const loadConcurrency = 1

func init() {
	runtime.GOMAXPROCS(1)
}
