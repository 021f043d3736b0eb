package rules

// FileSet is an insertion-ordered set of canonical file paths
type FileSet struct {
	paths []string
	seen  map[string]struct{}
}

// NewFileSet returns an empty set
func NewFileSet() *FileSet {
	return &FileSet{seen: make(map[string]struct{})}
}

// Add inserts path and reports whether it was new
func (s *FileSet) Add(path string) bool {
	if _, ok := s.seen[path]; ok {
		return false
	}
	s.seen[path] = struct{}{}
	s.paths = append(s.paths, path)
	return true
}

// Contains reports whether path is in the set
func (s *FileSet) Contains(path string) bool {
	_, ok := s.seen[path]
	return ok
}

// Len returns the number of paths
func (s *FileSet) Len() int {
	return len(s.paths)
}

// Paths returns the paths in first-seen order
func (s *FileSet) Paths() []string {
	return append([]string(nil), s.paths...)
}
