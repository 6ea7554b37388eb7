package domain

// Rect is an on-screen box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Pad grows the rectangle by p on every side.
func (r Rect) Pad(p float64) Rect {
	return Rect{X: r.X - p, Y: r.Y - p, Width: r.Width + 2*p, Height: r.Height + 2*p}
}

// Within reports whether r lies entirely inside outer.
func (r Rect) Within(outer Rect) bool {
	return r.X >= outer.X && r.Y >= outer.Y &&
		r.X+r.Width <= outer.X+outer.Width &&
		r.Y+r.Height <= outer.Y+outer.Height
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// ElementLocation is the outcome of resolving a step's target element.
type ElementLocation struct {
	Found             bool    `json:"found"`
	Selector          string  `json:"selector,omitempty"`
	Coordinates       *Rect   `json:"coordinates,omitempty"`
	Confidence        float64 `json:"confidence"`
	VisualDescription string  `json:"visualDescription,omitempty"`
	FallbackToHint    bool    `json:"fallbackToHint"`
	Error             string  `json:"error,omitempty"`
}

// LocateRequest is what the vision model receives to find an element.
type LocateRequest struct {
	Screenshot   string       `json:"screenshot"`
	Description  string       `json:"elementDescription"`
	SelectorHint string       `json:"selectorHint,omitempty"`
	Context      *VisionScope `json:"tourContext,omitempty"`
}

// VisionScope is the slice of TourContext that grounds a vision request.
type VisionScope struct {
	TourID          string `json:"tourId"`
	StepIndex       int    `json:"stepIndex"`
	StepDescription string `json:"stepDescription"`
}
