package gemini

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the instruction text sent with each summarization
// request. Plain-text output is requested explicitly because the
// delivery target renders markdown literally.
type Prompts struct {
	Transcript string `yaml:"transcript"`
	Media      string `yaml:"media"`
}

const defaultTranscriptPrompt = `Read the following meeting transcript and produce structured meeting minutes.

Format (plain text only, no markdown headings or emphasis):

Meeting Summary
[one or two sentences covering the purpose and main topics]

Key Discussion Points
- [point 1]
- [point 2]
...

Decisions
- [decision 1]
- [decision 2]
...

Action Items
[owner] [task] [due date]
...

Other Notes
[anything else important]

Rules:
- Do not use markdown syntax such as ##, ###, or **
- Put action items under "Action Items"
- Output plain text only`

const defaultMediaPrompt = `Create meeting minutes from the following recording.

Requirements:
1. Extract the main agenda topics
2. Summarize the discussion per topic
3. State decisions and action items clearly
4. Organize speaker contributions where identifiable
5. Output plain text only, no markdown syntax (##, ###, **)

Format:

Meeting Minutes

Date/Time
[when the meeting took place, if determinable]

Participants
[participant list, if determinable]

Agenda
1. [topic 1]
2. [topic 2]
...

Discussion
[topic 1]
[summary]

[topic 2]
[summary]
...

Decisions
- [decision 1]
...

Action Items
[owner] [task] [due date]
...

Other Notes
[anything else important]`

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		Transcript: defaultTranscriptPrompt,
		Media:      defaultMediaPrompt,
	}
}

// LoadPrompts reads prompt overrides from a YAML file. Empty fields
// keep their defaults; path == "" returns the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompt file: %w", err)
	}

	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return prompts, fmt.Errorf("parse prompt file: %w", err)
	}

	if overrides.Transcript != "" {
		prompts.Transcript = overrides.Transcript
	}
	if overrides.Media != "" {
		prompts.Media = overrides.Media
	}
	return prompts, nil
}
