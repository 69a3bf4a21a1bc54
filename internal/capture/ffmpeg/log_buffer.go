package ffmpeg

import "sync"

// logBuffer keeps the last lines of ffmpeg stderr so read failures can say why.
type logBuffer struct {
	mu      sync.RWMutex
	entries []string
	head    int // next write position
	size    int
}

func newLogBuffer(capacity int) *logBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &logBuffer{entries: make([]string, capacity)}
}

// Append adds a line, overwriting the oldest when full.
func (b *logBuffer) Append(entry string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % len(b.entries)
	if b.size < len(b.entries) {
		b.size++
	}
}

// Tail returns up to n lines, oldest first. n <= 0 returns everything held.
func (b *logBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > b.size {
		n = b.size
	}
	capN := len(b.entries)
	out := make([]string, n)
	start := (b.head - n + capN) % capN
	for i := 0; i < n; i++ {
		out[i] = b.entries[(start+i)%capN]
	}
	return out
}
