// Package ring provides a fixed-capacity circular buffer of strings.
package ring

// Buffer holds string keys in a circular buffer. When full, adding a new
// key overwrites the oldest one, which is returned to the caller so that
// any companion data structure can evict it too.
type Buffer struct {
	keys  []string
	size  int
	head  int // next slot to write
	count int // number of elements currently held
}

// NewBuffer creates a Buffer with the given capacity.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &Buffer{
		keys: make([]string, size),
		size: size,
	}
}

// Add appends a key. If the buffer is full the oldest key is overwritten
// and returned with evicted=true.
func (b *Buffer) Add(key string) (oldest string, evicted bool) {
	if b.count == b.size {
		oldest, evicted = b.keys[b.head], true
	}
	b.keys[b.head] = key
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	return oldest, evicted
}

// Len returns the number of keys currently held.
func (b *Buffer) Len() int {
	return b.count
}

// Reset discards all keys.
func (b *Buffer) Reset() {
	b.head = 0
	b.count = 0
}

// Keys returns the held keys in insertion order, oldest first.
func (b *Buffer) Keys() []string {
	result := make([]string, b.count)
	if b.count < b.size {
		copy(result, b.keys[:b.head])
		return result
	}
	copied := copy(result, b.keys[b.head:])
	copy(result[copied:], b.keys[:b.head])
	return result
}
