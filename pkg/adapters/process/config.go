package process

import (
	"fmt"
	"sort"
	"strings"
)

// Recorder describes a command that writes raw audio to stdout.
type Recorder struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// Presets produce 16 kHz mono signed 16-bit little endian PCM, the default
// format of the recognition engine.
var Presets = map[string]Recorder{
	"arecord": {
		Name:    "arecord",
		Command: "arecord",
		Args:    []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"},
	},
	"sox": {
		Name:    "sox",
		Command: "rec",
		Args:    []string{"-q", "-t", "raw", "-r", "16000", "-c", "1", "-b", "16", "-e", "signed-integer", "-"},
	},
	"ffmpeg-pulse": {
		Name:    "ffmpeg-pulse",
		Command: "ffmpeg",
		Args:    []string{"-loglevel", "quiet", "-f", "pulse", "-i", "default", "-ac", "1", "-ar", "16000", "-f", "s16le", "-"},
	},
}

// Resolve picks the recorder to run. A non-empty command line wins over the
// preset name.
func Resolve(preset string, command []string) (Recorder, error) {
	if len(command) > 0 {
		if strings.TrimSpace(command[0]) == "" {
			return Recorder{}, fmt.Errorf("recorder command is empty")
		}
		return Recorder{Name: "custom", Command: command[0], Args: command[1:]}, nil
	}
	if preset == "" {
		preset = "arecord"
	}
	r, ok := Presets[preset]
	if !ok {
		names := make([]string, 0, len(Presets))
		for n := range Presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return Recorder{}, fmt.Errorf("unknown recorder %q: want one of %s", preset, strings.Join(names, ", "))
	}
	return r, nil
}
