// Package console implements the byte-ring-buffer backing component F's
// cputs/cgetc syscalls. It is deliberately trivial — the spec (§1) lists
// the actual console hardware driver as an external collaborator — but
// it is a real ring buffer backed by a refcounted physical page (the
// same technique biscuit's circbuf package uses for the same reason: a
// fixed-size, page-granular buffer is the natural unit a kernel hands
// around), and it sanitizes untrusted environment output before it ever
// reaches the buffer.
package console

import (
	"fmt"
	"io"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"exoknl/physmem"
)

// Console is a single-producer-at-a-time ring buffer of console output,
// optionally echoed to an underlying writer (e.g. os.Stdout).
type Console struct {
	mu         sync.Mutex
	phys       *physmem.Allocator
	pa         physmem.Pa_t
	buf        []byte
	head, tail int
	count      int
	out        io.Writer
}

var stripControl = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// New allocates a single physical page to back the ring buffer.
func New(phys *physmem.Allocator, out io.Writer) (*Console, error) {
	pa, ok := phys.Alloc()
	if !ok {
		return nil, fmt.Errorf("console: out of physical memory")
	}
	phys.Refup(pa)
	return &Console{
		phys: phys,
		pa:   pa,
		buf:  phys.Bytes(pa),
		out:  out,
	}, nil
}

// Close releases the backing physical page.
func (c *Console) Close() {
	c.phys.Refdown(c.pa)
}

// Puts appends s to the ring buffer, dropping the oldest bytes if s
// would overflow it, and echoes the sanitized text to the underlying
// writer if one was configured. Non-printable control runes other than
// '\n' and '\t' are stripped first, since s comes straight from an
// untrusted environment's memory by way of check_user_mem and carries
// no guarantee of being clean text.
func (c *Console) Puts(s []byte) {
	clean, _, err := transform.Bytes(stripControl, s)
	if err != nil {
		clean = s
	}
	c.mu.Lock()
	for _, b := range clean {
		c.buf[c.head] = b
		c.head = (c.head + 1) % len(c.buf)
		if c.count == len(c.buf) {
			c.tail = (c.tail + 1) % len(c.buf)
		} else {
			c.count++
		}
	}
	c.mu.Unlock()
	if c.out != nil {
		c.out.Write(clean)
	}
}

// Getc pops and returns the oldest buffered byte, or 0 if none is
// waiting — cgetc never blocks.
func (c *Console) Getc() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return 0
	}
	b := c.buf[c.tail]
	c.tail = (c.tail + 1) % len(c.buf)
	c.count--
	return b
}
