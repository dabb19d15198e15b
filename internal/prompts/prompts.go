// Package prompts holds the model instructions shipped with the binary.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var raw []byte

type Set struct {
	ChatSystem  string `yaml:"chat_system"`
	SessionName string `yaml:"session_name"`

	sessionName *template.Template
}

// Default returns the embedded prompt set. It panics if the embedded file is
// broken, which the package tests guard against.
func Default() *Set {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func Parse(b []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	s.ChatSystem = strings.TrimSpace(s.ChatSystem)
	if s.ChatSystem == "" {
		return nil, errors.New("parse prompts: chat_system is empty")
	}
	tmpl, err := template.New("session_name").Option("missingkey=error").Parse(s.SessionName)
	if err != nil {
		return nil, fmt.Errorf("parse prompts: session_name: %w", err)
	}
	s.sessionName = tmpl
	return &s, nil
}

func (s *Set) RenderSessionName(topic string) (string, error) {
	var b strings.Builder
	if err := s.sessionName.Execute(&b, struct{ Topic string }{Topic: topic}); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
