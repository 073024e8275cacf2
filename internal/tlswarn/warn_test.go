package tlswarn

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
)

// No t.Parallel(): the test swaps the global log writer and resets the
// package-level once.
func TestLogInsecureWarnsExactlyOnce(t *testing.T) {
	once = sync.Once{}

	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(orig) })

	LogInsecure()
	LogInsecure()
	LogInsecure()

	if got := strings.Count(buf.String(), "[TLS] WARNING:"); got != 1 {
		t.Fatalf("warning emitted %d times, want 1; output:\n%s", got, buf.String())
	}
}
