// Package caps models media capabilities: a set of structures such as
// "video/x-h264, profile=main" that two elements must agree on before data
// can flow between them.
//
// Caps are immutable values. ANY matches everything, the empty set matches
// nothing.
package caps

import (
	"fmt"
	"sort"
	"strings"
)

// Structure is one media type with optional fixed fields.
type Structure struct {
	Name   string
	Fields map[string]string
}

// Caps is a set of alternative structures.
type Caps struct {
	any        bool
	structures []Structure
}

// Any returns caps that intersect with everything.
func Any() Caps {
	return Caps{any: true}
}

// Empty returns caps that intersect with nothing.
func Empty() Caps {
	return Caps{}
}

// New builds caps from structures. Duplicates are kept; use Intersect or
// Parse for normalized values.
func New(structures ...Structure) Caps {
	out := make([]Structure, 0, len(structures))
	for _, s := range structures {
		out = append(out, s.clone())
	}
	return Caps{structures: out}
}

// MustParse is Parse that panics on error. Intended for literals.
func MustParse(s string) Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads the textual form: structures separated by ';', each a media
// type followed by comma separated key=value fields. "ANY" and "EMPTY" are
// recognised.
func Parse(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "ANY":
		return Any(), nil
	case "", "EMPTY", "NONE":
		return Empty(), nil
	}

	var out []Structure
	for i, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		name := strings.TrimSpace(fields[0])
		if name == "" || strings.Contains(name, "=") {
			return Caps{}, fmt.Errorf("caps structure %d: missing media type in %q", i, part)
		}
		st := Structure{Name: name}
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				return Caps{}, fmt.Errorf("caps structure %d: field %q is not key=value", i, f)
			}
			if st.Fields == nil {
				st.Fields = make(map[string]string)
			}
			st.Fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out = append(out, st)
	}
	return Caps{structures: out}, nil
}

// IsAny reports whether c matches everything.
func (c Caps) IsAny() bool { return c.any }

// IsEmpty reports whether c matches nothing.
func (c Caps) IsEmpty() bool { return !c.any && len(c.structures) == 0 }

// Structures returns a copy of the structures in c.
func (c Caps) Structures() []Structure {
	out := make([]Structure, 0, len(c.structures))
	for _, s := range c.structures {
		out = append(out, s.clone())
	}
	return out
}

// Intersect returns the caps accepted by both c and other.
func (c Caps) Intersect(other Caps) Caps {
	switch {
	case c.any:
		return other.clone()
	case other.any:
		return c.clone()
	}

	var out []Structure
	seen := make(map[string]bool)
	for _, a := range c.structures {
		for _, b := range other.structures {
			merged, ok := a.intersect(b)
			if !ok {
				continue
			}
			key := merged.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, merged)
		}
	}
	return Caps{structures: out}
}

// CanIntersect reports whether c and other share at least one structure.
func (c Caps) CanIntersect(other Caps) bool {
	return !c.Intersect(other).IsEmpty()
}

// Equal compares the textual forms of both caps.
func (c Caps) Equal(other Caps) bool {
	return c.String() == other.String()
}

func (c Caps) String() string {
	if c.any {
		return "ANY"
	}
	if len(c.structures) == 0 {
		return "EMPTY"
	}
	parts := make([]string, 0, len(c.structures))
	for _, s := range c.structures {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}

func (c Caps) clone() Caps {
	if c.any {
		return Any()
	}
	return New(c.structures...)
}

// MarshalText encodes caps in their textual form.
func (c Caps) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses the textual form.
func (c *Caps) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (s Structure) String() string {
	if len(s.Fields) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=%s", k, s.Fields[k])
	}
	return b.String()
}

// intersect merges two structures when the media types match and no field
// has conflicting values.
func (s Structure) intersect(o Structure) (Structure, bool) {
	if s.Name != o.Name {
		return Structure{}, false
	}
	out := Structure{Name: s.Name}
	for k, v := range s.Fields {
		if ov, ok := o.Fields[k]; ok && ov != v {
			return Structure{}, false
		}
		out.set(k, v)
	}
	for k, v := range o.Fields {
		out.set(k, v)
	}
	return out, true
}

func (s *Structure) set(k, v string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[k] = v
}

func (s Structure) clone() Structure {
	out := Structure{Name: s.Name}
	for k, v := range s.Fields {
		out.set(k, v)
	}
	return out
}
