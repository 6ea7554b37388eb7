package loam

// TourMetadata is the front matter of a tour document.
// Durations are strings such as "2s" and are parsed when the tour is built.
type TourMetadata struct {
	ID    string         `json:"id" mapstructure:"id"`
	Name  string         `json:"name" mapstructure:"name"`
	Pages []PageMetadata `json:"pages" mapstructure:"pages"`
}

type PageMetadata struct {
	ID     string         `json:"id" mapstructure:"id"`
	Target string         `json:"target" mapstructure:"target"`
	Title  string         `json:"title" mapstructure:"title"`
	Steps  []StepMetadata `json:"steps" mapstructure:"steps"`
}

type StepMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Selector    string `json:"selector" mapstructure:"selector"`
	Element     string `json:"element" mapstructure:"element"`
	// Narration may be omitted and written in the document body instead,
	// under a "## <step id>" heading.
	Narration string           `json:"narration" mapstructure:"narration"`
	Position  string           `json:"position" mapstructure:"position"`
	Duration  string           `json:"duration" mapstructure:"duration"`
	WaitFor   *WaitForMetadata `json:"waitFor" mapstructure:"waitFor"`
	Action    *ActionMetadata  `json:"action" mapstructure:"action"`
}

type WaitForMetadata struct {
	Selector string `json:"selector" mapstructure:"selector"`
	Timeout  string `json:"timeout" mapstructure:"timeout"`
}

type ActionMetadata struct {
	Type     string `json:"type" mapstructure:"type"`
	Selector string `json:"selector" mapstructure:"selector"`
	Delay    string `json:"delay" mapstructure:"delay"`
}
