package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// FingerprintLength is the number of hex characters kept from the SHA-256 digest.
const FingerprintLength = 56

var (
	fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{56}$`)
	modelNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

var (
	// ErrInvalidDescriptor is returned when a queued job cannot be decoded.
	ErrInvalidDescriptor = errors.New("invalid job descriptor")
	// ErrUnusableCallback is returned when a callback has no deliverable URL.
	ErrUnusableCallback = errors.New("unusable callback")
)

// Callback is the delivery view of an opaque callback, resolved only when
// an outcome is sent.
type Callback struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JobDescriptor is the unit of work pushed onto the separation queue. The
// callback is carried as submitted and never interpreted before delivery.
type JobDescriptor struct {
	Hash     string          `json:"hash"`
	Model    string          `json:"model"`
	Callback json.RawMessage `json:"callback"`
}

// NormalizeCallback maps an absent or null callback to nil.
func NormalizeCallback(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}

// ResolveCallback extracts the delivery URL and data from an opaque callback.
// Only absolute http(s) URLs are deliverable.
func ResolveCallback(raw json.RawMessage) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableCallback, err)
	}
	if cb.URL == "" {
		return nil, fmt.Errorf("%w: missing url", ErrUnusableCallback)
	}
	u, err := url.Parse(cb.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusableCallback, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http url", ErrUnusableCallback, cb.URL)
	}
	return &cb, nil
}

// InputKey is the object name of the submitted audio in the input bucket.
func (d *JobDescriptor) InputKey() string {
	return InputKey(d.Hash)
}

// Encode serializes the descriptor for the queue.
func (d *JobDescriptor) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// ParseJobDescriptor decodes a raw queue entry. Entries without a valid
// fingerprint or with an unusable model name are rejected; a missing model
// falls back to defaultModel.
func ParseJobDescriptor(raw []byte, defaultModel string) (*JobDescriptor, error) {
	var wire struct {
		Hash     *string         `json:"hash"`
		Model    *string         `json:"model"`
		Callback json.RawMessage `json:"callback"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if wire.Hash == nil || *wire.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalidDescriptor)
	}
	if !ValidFingerprint(*wire.Hash) {
		return nil, fmt.Errorf("%w: malformed hash %q", ErrInvalidDescriptor, *wire.Hash)
	}

	desc := &JobDescriptor{
		Hash:     *wire.Hash,
		Model:    defaultModel,
		Callback: NormalizeCallback(wire.Callback),
	}
	if wire.Model != nil && *wire.Model != "" {
		desc.Model = *wire.Model
	}
	if !ValidModelName(desc.Model) {
		return nil, fmt.Errorf("%w: invalid model %q", ErrInvalidDescriptor, desc.Model)
	}
	return desc, nil
}

// ValidFingerprint reports whether s looks like a fingerprint.
func ValidFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}

// ValidModelName reports whether s is usable as a model identifier.
func ValidModelName(s string) bool {
	return modelNamePattern.MatchString(s)
}

// InputKey returns the input bucket key for a fingerprint.
func InputKey(hash string) string {
	return hash + ".mp3"
}

// PartKey returns the output bucket key for one separated part.
func PartKey(hash, part string) string {
	return hash + "-" + part
}
