// Package ie decodes 802.11 information elements relevant to PiGuard's
// detectors — today, just the RSN (Robust Security Network) element.
package ie

import "fmt"

// Selector is an AKM or cipher suite selector formatted "oo:oo:oo:s": a
// lowercase-hex OUI followed by the decimal suite type.
type Selector = string

// Selectors is a set of AKM or cipher selectors.
type Selectors map[Selector]struct{}

// RSN is the result of parsing an RSN information element: the group and
// pairwise cipher selectors merged into Ciphers, and the AKM selectors.
type RSN struct {
	AKMs    Selectors
	Ciphers Selectors
}

// cursor is a bounds-checked little-endian reader over IE bytes. It never
// panics; reads past the end simply report ok=false so callers can return
// whatever was parsed so far.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) readU16() (uint16, bool) {
	if c.remaining() < 2 {
		return 0, false
	}
	v := uint16(c.data[c.pos]) | uint16(c.data[c.pos+1])<<8
	c.pos += 2
	return v, true
}

func (c *cursor) readSelector() (Selector, bool) {
	if c.remaining() < 4 {
		return "", false
	}
	b := c.data[c.pos : c.pos+4]
	c.pos += 4
	return fmt.Sprintf("%02x:%02x:%02x:%d", b[0], b[1], b[2], b[3]), true
}

// ParseRSN decodes the contents of an RSN information element (id 48).
// Parsing is best-effort: truncation at any point after the group cipher
// returns the sets accumulated so far rather than an error.
func ParseRSN(data []byte) RSN {
	rsn := RSN{AKMs: Selectors{}, Ciphers: Selectors{}}
	c := &cursor{data: data}

	// version (2 bytes) — discarded.
	if _, ok := c.readU16(); !ok {
		return rsn
	}

	// group cipher suite (4 bytes) — contributes to Ciphers.
	group, ok := c.readSelector()
	if !ok {
		return rsn
	}
	rsn.Ciphers[group] = struct{}{}

	// pairwise count + list.
	pairwiseCount, ok := c.readU16()
	if !ok {
		return rsn
	}
	for i := 0; i < int(pairwiseCount); i++ {
		sel, ok := c.readSelector()
		if !ok {
			return rsn
		}
		rsn.Ciphers[sel] = struct{}{}
	}

	// AKM count + list.
	akmCount, ok := c.readU16()
	if !ok {
		return rsn
	}
	for i := 0; i < int(akmCount); i++ {
		sel, ok := c.readSelector()
		if !ok {
			return rsn
		}
		rsn.AKMs[sel] = struct{}{}
	}

	return rsn
}
