package domain

import "time"

// LayerKind identifies the role of a render layer on the surface.
type LayerKind string

const (
	LayerOverlay   LayerKind = "overlay"
	LayerHighlight LayerKind = "highlight"
	LayerTooltip   LayerKind = "tooltip"
	LayerOutline   LayerKind = "outline"
	LayerModal     LayerKind = "modal"
	LayerButton    LayerKind = "button"
	LayerCaption   LayerKind = "caption"
)

// Layer is a named piece of render state drawn on top of the host page.
// Each layer has exactly one owning component; only the owner redraws or clears it.
type Layer struct {
	Name       string
	Kind       LayerKind
	Rects      []Rect
	Title      string
	Body       string
	Position   string
	Messages   []Message
	Visible    bool
	Transition time.Duration
	Style      map[string]string
}

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is one entry of a conversation transcript.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// UIEventKind categorizes input arriving from the surface.
type UIEventKind string

const (
	UIKey        UIEventKind = "key"
	UIHoverEnter UIEventKind = "hover_enter"
	UIHoverLeave UIEventKind = "hover_leave"
	UIClick      UIEventKind = "click"
	UISubmit     UIEventKind = "submit"
	UIResize     UIEventKind = "resize"
	UIScroll     UIEventKind = "scroll"
)

// UIEvent is a user or layout event observed on the surface.
// Target is a selector for hover events and a control name for clicks and submits.
type UIEvent struct {
	Kind   UIEventKind `json:"kind"`
	Key    string      `json:"key,omitempty"`
	Target string      `json:"target,omitempty"`
	Text   string      `json:"text,omitempty"`
}

// Control names used by widget-owned layers in click and submit events.
const (
	ControlTrigger    = "trigger"
	ControlClose      = "close"
	ControlAsk        = "ask"
	ControlMicrophone = "microphone"
)

// ElementInfo describes an element found on the surface.
type ElementInfo struct {
	Selector   string            `json:"selector"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Bounds     Rect              `json:"bounds"`
	InViewport bool              `json:"inViewport"`
}

// DOMNode is one node of a shallow structural snapshot of the page.
type DOMNode struct {
	Tag      string            `json:"tag"`
	ID       string            `json:"id,omitempty"`
	Classes  []string          `json:"classes,omitempty"`
	Text     string            `json:"text,omitempty"`
	Markers  map[string]string `json:"markers,omitempty"`
	Children []*DOMNode        `json:"children,omitempty"`
}

// Transcript is a recognition result. Interim results may be revised later.
type Transcript struct {
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
}

// AudioClip is a playable synthesized narration.
type AudioClip struct {
	Data []byte `json:"data"`
	MIME string `json:"mime"`
}

// Image is an encoded capture ready to be sent to a remote model.
type Image struct {
	DataURI string `json:"dataUri"`
	Size    int    `json:"size"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Quality int    `json:"quality"`
}
