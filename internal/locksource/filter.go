package locksource

import (
	"regexp"
	"strings"
)

const markerFragment = "member=ActiveChanged"

var payloadPattern = regexp.MustCompile(`^\s*boolean\s+(true|false)\b`)

// Filter extracts screen-lock transitions from raw monitor output.
// dbus-monitor prints each ActiveChanged signal as a header line
// naming the member, immediately followed by a payload line carrying
// the boolean argument. The filter is a two-state scan: a marker line
// arms it, and only the very next line is considered for the payload.
// Everything else is discarded. One Filter per stream; it is not
// restartable.
type Filter struct {
	stream LineStream
	armed  bool
}

func NewFilter(stream LineStream) *Filter {
	return &Filter{stream: stream}
}

// Next returns the next lock transition (true = locked), or ok=false
// once the underlying stream ends. A marker with no payload line
// before stream end yields nothing.
func (f *Filter) Next() (locked bool, ok bool) {
	for {
		line, more := f.stream.Next()
		if !more {
			return false, false
		}
		if f.armed {
			f.armed = false
			if m := payloadPattern.FindStringSubmatch(line); m != nil {
				return m[1] == "true", true
			}
			// not a payload; fall through so a back-to-back
			// marker line still re-arms
		}
		if strings.Contains(line, markerFragment) {
			f.armed = true
		}
	}
}
