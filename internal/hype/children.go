package hype

// Element names inside the stage.
const (
	NameSegmenter  = "scenedetector"
	NameDispatcher = "outputselector"
	NameCollector  = "scenecollector"
	NameCapsFilter = "capsfilter"
)

// Child is an element owned by the stage.
type Child struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Element is the underlying value: *segment.Segmenter,
	// *dispatch.Dispatcher, *collect.Collector, the capsfilter, or a
	// worker.Worker.
	Element any `json:"-"`
}

// Children lists the fixed elements followed by bound encoders in slot
// order.
func (s *Stage) Children() []Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Child{
		{Name: NameSegmenter, Type: "segmenter", Element: s.segmenter},
		{Name: NameDispatcher, Type: "dispatcher", Element: s.dispatcher},
		{Name: NameCollector, Type: "collector", Element: s.collector},
		{Name: NameCapsFilter, Type: "capsfilter", Element: s.capsfilter},
	}
	for i, w := range s.slots {
		if w == nil {
			continue
		}
		out = append(out, Child{Name: slotName(i), Type: w.Kind().String(), Element: w})
	}
	return out
}

// ChildrenCount returns len(Children()).
func (s *Stage) ChildrenCount() int {
	return len(s.Children())
}

// ChildByIndex returns the i-th child.
func (s *Stage) ChildByIndex(i int) (Child, bool) {
	children := s.Children()
	if i < 0 || i >= len(children) {
		return Child{}, false
	}
	return children[i], true
}

// ChildByName returns the child with the given name.
func (s *Stage) ChildByName(name string) (Child, bool) {
	for _, c := range s.Children() {
		if c.Name == name {
			return c, true
		}
	}
	return Child{}, false
}
