package providers

import (
	"fmt"
	"strings"
)

// Capability is a kind of work a provider can perform
type Capability string

const (
	CapabilityTextGeneration  Capability = "text-generation"
	CapabilityImageGeneration Capability = "image-generation"
	CapabilityVideoGeneration Capability = "video-generation"
	CapabilityAudioGeneration Capability = "audio-generation"
	CapabilityEmbeddings      Capability = "embeddings"
	CapabilitySpeechToText    Capability = "speech-to-text"
	CapabilityTextToSpeech    Capability = "text-to-speech"
	CapabilityTranslation     Capability = "translation"
	CapabilityVision          Capability = "vision"
	CapabilityCodeGeneration  Capability = "code-generation"
)

var allCapabilities = []Capability{
	CapabilityTextGeneration,
	CapabilityImageGeneration,
	CapabilityVideoGeneration,
	CapabilityAudioGeneration,
	CapabilityEmbeddings,
	CapabilitySpeechToText,
	CapabilityTextToSpeech,
	CapabilityTranslation,
	CapabilityVision,
	CapabilityCodeGeneration,
}

// AllCapabilities returns the closed set of capabilities in declaration order
func AllCapabilities() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// Valid reports whether c belongs to the closed capability set
func (c Capability) Valid() bool {
	for _, known := range allCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCapability parses a capability name, case-insensitively
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// CapabilitySet is an immutable set of capabilities
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from a list, rejecting unknown entries
func NewCapabilitySet(caps ...Capability) (CapabilitySet, error) {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown capability %q", c)
		}
		set[c] = struct{}{}
	}
	return set, nil
}

// Has reports whether the set contains c
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the set members in declaration order
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for _, c := range allCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
