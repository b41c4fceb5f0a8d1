package listing

import "github.com/diewo77/bloodboard/internal/models"

// State is the public listing view model.
type State struct {
	All       []models.Shortage
	Filter    Filter
	Visible   []models.Shortage
	Summary   Summary
	Districts []string
	Loading   bool
}

// Action is an input to Reduce.
type Action interface{ isAction() }

type (
	// Loaded replaces the data after a fetch.
	Loaded struct {
		Shortages []models.Shortage
		Centers   []models.Center
	}
	SetSearch    struct{ Value string }
	SetBloodType struct{ Value string }
	SetDistrict  struct{ Value string }
	SetStatus    struct{ Value string }
	// Clear resets the search and every dropdown.
	Clear struct{}
)

func (Loaded) isAction()       {}
func (SetSearch) isAction()    {}
func (SetBloodType) isAction() {}
func (SetDistrict) isAction()  {}
func (SetStatus) isAction()    {}
func (Clear) isAction()        {}

// NewState is the state before the first fetch completes.
func NewState(f Filter) State {
	return State{Filter: f.Normalize(), Loading: true}
}

// Reduce applies a to s. Visible and Summary are always recomputed.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Loaded:
		s.All = a.Shortages
		s.Districts = Districts(a.Centers)
		s.Loading = false
	case SetSearch:
		s.Filter.Search = a.Value
	case SetBloodType:
		s.Filter.BloodType = a.Value
	case SetDistrict:
		s.Filter.District = a.Value
	case SetStatus:
		s.Filter.Status = a.Value
	case Clear:
		s.Filter = Filter{}
	}
	s.Filter = s.Filter.Normalize()
	s.Visible = Apply(s.All, s.Filter)
	s.Summary = Summarize(s.Visible)
	return s
}

// EmptyMessage is the empty-state text for s.
func (s State) EmptyMessage() string {
	if s.Loading {
		return ""
	}
	return EmptyMessage(len(s.All), len(s.Visible))
}
