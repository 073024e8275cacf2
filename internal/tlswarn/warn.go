// Package tlswarn provides a process-wide one-shot warning for insecure TLS
// probing.
package tlswarn

import (
	"log"
	"sync"
)

var once sync.Once

// LogInsecure emits a single warning the first time it is called. Subsequent
// calls are no-ops, so repeated probes against self-signed servers do not
// spam the log.
func LogInsecure() {
	once.Do(func() {
		log.Print("[TLS] WARNING: certificate verification is disabled for server probes. Only use against servers you control.")
	})
}
