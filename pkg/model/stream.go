package model

import "bytes"

// lineDecoder reassembles newline-delimited JSON lines from raw transport
// fragments. Fragments may end mid-line; the trailing partial line is retained
// until the next fragment (or Flush) completes it.
type lineDecoder struct {
	pending []byte
}

// Feed appends a raw fragment and returns the complete lines it unlocked,
// in order, with surrounding whitespace trimmed and empty lines dropped.
func (d *lineDecoder) Feed(fragment []byte) [][]byte {
	d.pending = append(d.pending, fragment...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(d.pending[:idx])
		d.pending = d.pending[idx+1:]
		if len(line) == 0 {
			continue
		}
		// Copy: pending is reused as the buffer grows.
		lines = append(lines, append([]byte(nil), line...))
	}
	return lines
}

// Flush returns the trailing partial line, if any. Called at stream end so a
// final object without a newline terminator is still decoded.
func (d *lineDecoder) Flush() []byte {
	line := bytes.TrimSpace(d.pending)
	d.pending = nil
	if len(line) == 0 {
		return nil
	}
	return line
}
