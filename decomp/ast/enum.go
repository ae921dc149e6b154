package ast

import (
	"sort"
	"strconv"
	"strings"
)

type (
	// EnumSet collects enum members discovered while cleaning.
	// It is not safe for concurrent use, batch callers merge under a lock.
	EnumSet struct {
		enums map[string]map[int64]string
	}
)

func NewEnumSet() *EnumSet {
	return &EnumSet{enums: map[string]map[int64]string{}}
}

func (s *EnumSet) Add(enum, name string, v int64) {
	m := s.enums[enum]
	if m == nil {
		m = map[int64]string{}
		s.enums[enum] = m
	}

	m[v] = name
}

func (s *EnumSet) Merge(o *EnumSet) {
	if o == nil {
		return
	}

	for enum, m := range o.enums {
		for v, name := range m {
			s.Add(enum, name, v)
		}
	}
}

func (s *EnumSet) Len() int {
	if s == nil {
		return 0
	}

	return len(s.enums)
}

// Decls returns the enums by name with members by value.
func (s *EnumSet) Decls() []*EnumDecl {
	if s == nil {
		return nil
	}

	r := make([]*EnumDecl, 0, len(s.enums))

	for enum, m := range s.enums {
		d := &EnumDecl{Name: enum}

		for v, name := range m {
			d.Values = append(d.Values, EnumMember{Name: name, Value: v})
		}

		sort.Slice(d.Values, func(i, j int) bool { return d.Values[i].Value < d.Values[j].Value })

		r = append(r, d)
	}

	sort.Slice(r, func(i, j int) bool { return r[i].Name < r[j].Name })

	return r
}

// expand substitutes {0} in a naming pattern.
func expand(pattern string, v int64) string {
	s := strconv.FormatInt(v, 10)
	if v < 0 {
		s = "m" + s[1:]
	}

	return strings.ReplaceAll(pattern, "{0}", s)
}
