package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Identity defines who the agent is on the phone: its name, the system
// prompt driving the conversation and the canned phrases spoken outside
// normal turns.
type Identity struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Greeting     string `yaml:"greeting"`
	Farewell     string `yaml:"farewell"`
	Apology      string `yaml:"apology"`
	HoldPhrase   string `yaml:"hold_phrase"`
}

// DefaultIdentity returns the built-in assistant persona.
func DefaultIdentity() Identity {
	return Identity{
		Name: "assistant",
		SystemPrompt: "You are a friendly voice assistant on a phone call. " +
			"Answer briefly, one or two sentences, in plain spoken language. " +
			"Never use markup or lists. When the caller wants to hang up, " +
			"use the end_call tool and say goodbye.",
		Greeting: "Greet the caller warmly and ask how you can help.",
		Farewell: "It seems you are no longer there. Ending the call, goodbye.",
		Apology:  "Sorry, something went wrong on my side. Could you repeat that?",
	}
}

// LoadIdentity parses an identity overlay file.
func LoadIdentity(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parse yaml: %w", err)
	}
	return id, nil
}

// Merge overlays non-empty fields of other onto the receiver.
func (i Identity) Merge(other Identity) Identity {
	if other.Name != "" {
		i.Name = other.Name
	}
	if other.SystemPrompt != "" {
		i.SystemPrompt = other.SystemPrompt
	}
	if other.Greeting != "" {
		i.Greeting = other.Greeting
	}
	if other.Farewell != "" {
		i.Farewell = other.Farewell
	}
	if other.Apology != "" {
		i.Apology = other.Apology
	}
	if other.HoldPhrase != "" {
		i.HoldPhrase = other.HoldPhrase
	}
	return i
}
