package identity

import "strings"

// FilterConfig decides which files in the identity directory count as key
// material.
type FilterConfig struct {
	AllowedExtensions []string
	IgnorePatterns    []string
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		AllowedExtensions: []string{}, // empty allows any file
		IgnorePatterns:    []string{".tmp", ".swp", ".lock", ".DS_Store", "~"},
	}
}

func (fc FilterConfig) ShouldCount(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(fc.AllowedExtensions) > 0 {
		matched := false
		for _, ext := range fc.AllowedExtensions {
			if strings.HasSuffix(name, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pattern := range fc.IgnorePatterns {
		if strings.HasSuffix(name, pattern) {
			return false
		}
	}
	return true
}
