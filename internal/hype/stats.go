package hype

import (
	"github.com/mattjoyce/hype/internal/collect"
	"github.com/mattjoyce/hype/internal/dispatch"
	"github.com/mattjoyce/hype/internal/segment"
	"github.com/mattjoyce/hype/internal/worker"
)

// Stats is a point-in-time view of the whole stage.
type Stats struct {
	State      string               `json:"state"`
	GroupSize  uint32               `json:"group_size"`
	MaxWorkers int                  `json:"max_workers"`
	OutputCaps string               `json:"output_caps"`
	Segmenter  segment.Stats        `json:"segmenter"`
	Dispatcher dispatch.Stats       `json:"dispatcher"`
	Collector  collect.Stats        `json:"collector"`
	Workers    []worker.BranchStats `json:"workers"`
}

// Stats collects counters from every element.
func (s *Stage) Stats() Stats {
	s.mu.Lock()
	seg, disp, coll, cf := s.segmenter, s.dispatcher, s.collector, s.capsfilter
	branches := append([]*worker.Branch(nil), s.branches...)
	st := Stats{State: s.state.String(), MaxWorkers: s.maxWorkers}
	s.mu.Unlock()

	st.GroupSize = seg.GroupSize()
	st.OutputCaps = cf.Caps().String()
	st.Segmenter = seg.Stats()
	st.Dispatcher = disp.Stats()
	st.Collector = coll.Stats()
	for _, br := range branches {
		st.Workers = append(st.Workers, br.Stats())
	}
	return st
}
