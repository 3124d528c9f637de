package generate

import "strings"

// directiveStore maps directives to unique sources, keeping insertion order
// for both directives and their sources.
type directiveStore struct {
	order   []Directive
	sources map[Directive][]string
	seen    map[Directive]map[string]struct{}
}

func newDirectiveStore() *directiveStore {
	return &directiveStore{
		sources: make(map[Directive][]string),
		seen:    make(map[Directive]map[string]struct{}),
	}
}

// ensure creates d with an empty source set when it is not present yet.
func (s *directiveStore) ensure(d Directive) {
	if _, ok := s.seen[d]; ok {
		return
	}
	s.order = append(s.order, d)
	s.seen[d] = make(map[string]struct{})
	s.sources[d] = nil
}

func (s *directiveStore) has(d Directive) bool {
	_, ok := s.seen[d]
	return ok
}

func (s *directiveStore) add(d Directive, tokens ...string) {
	s.ensure(d)
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, dupe := s.seen[d][token]; dupe {
			continue
		}
		s.seen[d][token] = struct{}{}
		s.sources[d] = append(s.sources[d], token)
	}
}

// set replaces the sources of d, keeping its position.
func (s *directiveStore) set(d Directive, tokens ...string) {
	s.ensure(d)
	s.seen[d] = make(map[string]struct{})
	s.sources[d] = nil
	s.add(d, tokens...)
}

func (s *directiveStore) get(d Directive) []string {
	return s.sources[d]
}

func (s *directiveStore) contains(d Directive, token string) bool {
	_, ok := s.seen[d][token]
	return ok
}

func (s *directiveStore) entries() (entries []DirectiveEntry) {
	for _, d := range s.order {
		entries = append(entries, DirectiveEntry{
			Name:    d,
			Sources: append([]string{}, s.sources[d]...),
		})
	}
	return
}

// value serializes the store as a header value.
func (s *directiveStore) value() string {
	parts := make([]string, 0, len(s.order))
	for _, d := range s.order {
		sources := s.sources[d]
		if len(sources) == 0 {
			parts = append(parts, string(d))
			continue
		}
		parts = append(parts, string(d)+" "+strings.Join(sources, " "))
	}
	return strings.Join(parts, "; ")
}
