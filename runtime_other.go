//go:build !386

package main

// loadConcurrency bounds how many documents are read at once while the
// index warms up.
const loadConcurrency = 8
