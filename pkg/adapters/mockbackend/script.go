package mockbackend

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script describes the bots served by the mock backend.
type Script struct {
	Bots map[string]*Bot `yaml:"bots"`
}

// Bot is a scripted flow plus its Q&A knowledge.
type Bot struct {
	// Start names the first step.
	Start string           `yaml:"start"`
	Steps map[string]*Step `yaml:"steps"`

	// Answers maps a keyword to an answer. A question matches a keyword
	// when it contains it, case-insensitively.
	Answers       map[string]string `yaml:"answers"`
	DefaultAnswer string            `yaml:"default_answer"`
}

// Step is one backend response.
type Step struct {
	Messages []Message `yaml:"messages"`

	// Awaiting is the envelope awaitingInput type (question, branch,
	// confirmation). Empty means the step does not wait for input.
	Awaiting string `yaml:"awaiting"`
	Finished bool   `yaml:"finished"`

	// Next maps an input or option label to the following step.
	Next map[string]string `yaml:"next"`
	// Default is taken when no Next entry matches.
	Default string `yaml:"default"`
}

// Message mirrors the backend raw message.
type Message struct {
	Type          string   `yaml:"type" json:"type,omitempty"`
	Content       string   `yaml:"content" json:"content,omitempty"`
	Message       string   `yaml:"message" json:"message,omitempty"`
	AwaitingInput bool     `yaml:"awaitingInput" json:"awaitingInput,omitempty"`
	Options       []string `yaml:"options" json:"options,omitempty"`
}

// LoadScript reads a YAML script from disk.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step reference resolves.
func (s *Script) Validate() error {
	if len(s.Bots) == 0 {
		return errors.New("script defines no bots")
	}
	var errs []error
	for _, botID := range s.BotIDs() {
		bot := s.Bots[botID]
		if bot == nil {
			errs = append(errs, fmt.Errorf("bot %q: empty definition", botID))
			continue
		}
		if _, ok := bot.Steps[bot.Start]; !ok {
			errs = append(errs, fmt.Errorf("bot %q: start step %q not found", botID, bot.Start))
		}
		for stepID, step := range bot.Steps {
			if step == nil {
				errs = append(errs, fmt.Errorf("bot %q: step %q is empty", botID, stepID))
				continue
			}
			targets := []string{step.Default}
			for _, to := range step.Next {
				targets = append(targets, to)
			}
			for _, to := range targets {
				if to == "" {
					continue
				}
				if _, ok := bot.Steps[to]; !ok {
					errs = append(errs, fmt.Errorf("bot %q: step %q points to unknown step %q", botID, stepID, to))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// BotIDs returns the scripted bot ids in sorted order.
func (s *Script) BotIDs() []string {
	ids := make([]string, 0, len(s.Bots))
	for id := range s.Bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// next resolves the step following from for the given input.
// Option selectors may be a label or a zero-based index into the
// options of the step's branch message.
func (b *Bot) next(from string, input string, isOption bool) (string, bool) {
	step := b.Steps[from]
	if step == nil {
		return "", false
	}
	if isOption {
		input = step.optionLabel(input)
	}
	for key, to := range step.Next {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(input)) {
			return to, true
		}
	}
	if step.Default != "" {
		return step.Default, true
	}
	return "", false
}

func (s *Step) optionLabel(selector string) string {
	for _, m := range s.Messages {
		if len(m.Options) == 0 {
			continue
		}
		if idx, err := strconv.Atoi(selector); err == nil && idx >= 0 && idx < len(m.Options) {
			return m.Options[idx]
		}
	}
	return selector
}

// answer looks up the Q&A answer for a question.
func (b *Bot) answer(question string) (string, bool) {
	q := strings.ToLower(question)
	keys := make([]string, 0, len(b.Answers))
	for k := range b.Answers {
		keys = append(keys, k)
	}
	// Longest keyword wins.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(q, strings.ToLower(k)) {
			return b.Answers[k], true
		}
	}
	if b.DefaultAnswer != "" {
		return b.DefaultAnswer, true
	}
	return "", false
}
