package profile

// Selector is the ordered list of profiles the user can cycle through.
type Selector struct {
	entries []Entry
	index   int
}

// NewSelector creates a selector positioned at start.
//
// Arguments:
//   - entries: The profiles in display order.
//   - start: The initially selected index.
//
// Returns:
//   - *Selector: The selector.
//   - error: ErrIndexOutOfRange if start does not name an entry.
func NewSelector(entries []Entry, start int) (*Selector, error) {
	if start < 0 || start >= len(entries) {
		return nil, ErrIndexOutOfRange
	}
	return &Selector{
		entries: append([]Entry(nil), entries...),
		index:   start,
	}, nil
}

// Len returns the number of profiles.
func (s *Selector) Len() int {
	return len(s.entries)
}

// Index returns the selected position.
func (s *Selector) Index() int {
	return s.index
}

// Current returns the selected profile.
func (s *Selector) Current() Entry {
	return s.entries[s.index]
}

// Next advances to the following profile, wrapping to the first.
func (s *Selector) Next() Entry {
	s.index = (s.index + 1) % len(s.entries)
	return s.Current()
}

// Prev moves to the preceding profile, wrapping to the last.
func (s *Selector) Prev() Entry {
	s.index = (s.index - 1 + len(s.entries)) % len(s.entries)
	return s.Current()
}

// Select moves to index i.
func (s *Selector) Select(i int) (Entry, error) {
	if i < 0 || i >= len(s.entries) {
		return Entry{}, ErrIndexOutOfRange
	}
	s.index = i
	return s.Current(), nil
}
