package domain

// PlaybackState is the position of the orchestrator in its state machine.
type PlaybackState string

const (
	StateIdle         PlaybackState = "idle"
	StatePlaying      PlaybackState = "playing"
	StatePaused       PlaybackState = "paused"
	StateConversation PlaybackState = "conversation"
)

// TourContext is a read-only snapshot of where a session is in its tour.
// It is recomputed on every step transition.
type TourContext struct {
	TourID      string `json:"tourId"`
	TourName    string `json:"tourName,omitempty"`
	StepIndex   int    `json:"stepIndex"`
	TotalSteps  int    `json:"totalSteps"`
	PageTitle   string `json:"pageTitle,omitempty"`
	CurrentStep *Step  `json:"currentStep,omitempty"`
}

// NewTourContext builds the context for the step at index.
// An index at or past the end yields a context with no current step.
func NewTourContext(t *TourDefinition, index int) TourContext {
	tc := TourContext{StepIndex: index}
	if t == nil {
		return tc
	}
	tc.TourID = t.ID
	tc.TourName = t.Name
	steps := t.Steps()
	tc.TotalSteps = len(steps)
	if index >= 0 && index < len(steps) {
		s := steps[index].Step
		tc.CurrentStep = &s
		tc.PageTitle = steps[index].Page.Title
	}
	return tc
}

// Scope narrows the context to what the vision model needs.
func (c TourContext) Scope() *VisionScope {
	if c.TourID == "" {
		return nil
	}
	vs := &VisionScope{TourID: c.TourID, StepIndex: c.StepIndex}
	if c.CurrentStep != nil {
		vs.StepDescription = c.CurrentStep.Description
		if vs.StepDescription == "" {
			vs.StepDescription = c.CurrentStep.Title
		}
	}
	return vs
}
