package batch

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseRequest decodes a batch request from YAML.
func ParseRequest(r io.Reader) (Request, error) {
	var req Request
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode batch request: %w", err)
	}
	if req.Repository == "" {
		return Request{}, fmt.Errorf("batch request has no repository")
	}
	for i, n := range req.Issues {
		if n.LocalID == "" {
			return Request{}, fmt.Errorf("issue %d has no id", i)
		}
		if n.Title == "" {
			return Request{}, fmt.Errorf("issue %q has no title", n.LocalID)
		}
	}
	return req, nil
}

// LoadRequest reads a batch request from a YAML file.
func LoadRequest(path string) (Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return Request{}, fmt.Errorf("open batch request: %w", err)
	}
	defer f.Close()
	return ParseRequest(f)
}
