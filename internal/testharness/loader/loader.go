package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseTestCases parses one or more YAML documents, each holding a test case.
func ParseTestCases(data []byte) ([]*TestCase, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var cases []*TestCase
	for {
		var tc TestCase
		err := dec.Decode(&tc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
		}
		if err := validate(&tc); err != nil {
			return nil, err
		}
		cases = append(cases, &tc)
	}
	if len(cases) == 0 {
		return nil, &LoadError{Message: "no test cases"}
	}
	return cases, nil
}

// ParseTestCase parses a single test case.
func ParseTestCase(data []byte) (*TestCase, error) {
	var tc TestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := validate(&tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

func validate(tc *TestCase) error {
	if tc.ID == "" {
		return &LoadError{Message: "test case ID is required"}
	}
	if len(tc.Steps) == 0 {
		return &LoadError{Message: fmt.Sprintf("%s: test case must have at least one step", tc.ID)}
	}
	for i, step := range tc.Steps {
		if step.Action == "" {
			return &LoadError{Message: fmt.Sprintf("%s: step %d has no action", tc.ID, i+1)}
		}
	}
	return nil
}

// LoadFile loads every test case in a file.
func LoadFile(path string) ([]*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cases, err := ParseTestCases(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	for _, tc := range cases {
		tc.File = path
	}
	return cases, nil
}

// LoadDirectory loads the test cases of every .yaml or .yml file below dir,
// in lexical path order. Duplicate IDs are rejected.
func LoadDirectory(dir string) ([]*TestCase, error) {
	var cases []*TestCase
	seen := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		loaded, err := LoadFile(path)
		if err != nil {
			return err
		}
		for _, tc := range loaded {
			if prev, dup := seen[tc.ID]; dup {
				return &LoadError{File: path, Message: fmt.Sprintf("duplicate test case ID %s (also in %s)", tc.ID, prev)}
			}
			seen[tc.ID] = path
		}
		cases = append(cases, loaded...)
		return nil
	})
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LoadError{File: dir, Message: "failed to read directory", Cause: err}
	}
	return cases, nil
}

// FilterByPattern keeps the cases whose ID or name matches pattern. An
// empty pattern keeps everything.
func FilterByPattern(cases []*TestCase, pattern string) ([]*TestCase, error) {
	if pattern == "" {
		return cases, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid test pattern: %w", err)
	}
	var out []*TestCase
	for _, tc := range cases {
		if re.MatchString(tc.ID) || re.MatchString(tc.Name) {
			out = append(out, tc)
		}
	}
	return out, nil
}

// FilterByTags keeps the cases carrying at least one of tags. No tags keeps
// everything.
func FilterByTags(cases []*TestCase, tags ...string) []*TestCase {
	if len(tags) == 0 {
		return cases
	}
	var out []*TestCase
	for _, tc := range cases {
		if slices.ContainsFunc(tc.Tags, func(t string) bool { return slices.Contains(tags, t) }) {
			out = append(out, tc)
		}
	}
	return out
}
