// Package msgpath parses plot path expressions such as "/odom.pose.position.x"
// or "/scan.ranges[:].@derivative" and evaluates them against decoded messages.
package msgpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DerivativeModifier is the path suffix requesting a first-difference transform.
const DerivativeModifier = "@derivative"

var (
	ErrEmptyPath = errors.New("msgpath: empty path")
	ErrNoTopic   = errors.New("msgpath: path must start with a topic")
)

// SegmentKind identifies a path segment.
type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentSlice
)

// Segment is one step of a message path.
type Segment struct {
	Kind  SegmentKind
	Name  string
	Index int
}

// Path is a parsed message path.
type Path struct {
	Topic    string
	Segments []Segment
	Modifier string
}

// IsDerivative reports whether the path requests the derivative transform.
func (p Path) IsDerivative() bool {
	return p.Modifier == DerivativeModifier
}

// FieldKey is the topic plus field names with indices dropped. Constant
// tables are keyed by it.
func (p Path) FieldKey() string {
	var b strings.Builder
	b.WriteString(p.Topic)
	for _, s := range p.Segments {
		if s.Kind == SegmentField {
			b.WriteByte('.')
			b.WriteString(s.Name)
		}
	}
	return b.String()
}

// String renders the path back to text.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Topic)
	for _, s := range p.Segments {
		b.WriteString(s.String())
	}
	if p.Modifier != "" {
		b.WriteByte('.')
		b.WriteString(p.Modifier)
	}
	return b.String()
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	case SegmentSlice:
		return "[:]"
	}
	return "." + s.Name
}

// Parse parses a message path.
func Parse(text string) (Path, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Path{}, ErrEmptyPath
	}
	if text[0] != '/' {
		return Path{}, ErrNoTopic
	}

	end := strings.IndexAny(text, ".[")
	if end < 0 {
		end = len(text)
	}
	p := Path{Topic: text[:end]}
	if p.Topic == "/" {
		return Path{}, ErrNoTopic
	}

	rest := text[end:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			n := strings.IndexAny(rest, ".[")
			if n < 0 {
				n = len(rest)
			}
			name := rest[:n]
			if name == "" {
				return Path{}, fmt.Errorf("msgpath: empty field name in %q", text)
			}
			if strings.HasPrefix(name, "@") {
				if n != len(rest) {
					return Path{}, fmt.Errorf("msgpath: modifier %q must be last in %q", name, text)
				}
				if name != DerivativeModifier {
					return Path{}, fmt.Errorf("msgpath: unknown modifier %q", name)
				}
				p.Modifier = name
			} else {
				p.Segments = append(p.Segments, Segment{Kind: SegmentField, Name: name})
			}
			rest = rest[n:]
		case '[':
			closeIdx := strings.IndexByte(rest, ']')
			if closeIdx < 0 {
				return Path{}, fmt.Errorf("msgpath: unterminated index in %q", text)
			}
			inner := strings.TrimSpace(rest[1:closeIdx])
			if inner == ":" {
				p.Segments = append(p.Segments, Segment{Kind: SegmentSlice})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil {
					return Path{}, fmt.Errorf("msgpath: invalid index %q in %q", inner, text)
				}
				p.Segments = append(p.Segments, Segment{Kind: SegmentIndex, Index: idx})
			}
			rest = rest[closeIdx+1:]
		default:
			return Path{}, fmt.Errorf("msgpath: unexpected %q in %q", rest[0], text)
		}
	}
	return p, nil
}
