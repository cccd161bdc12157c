// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"strings"
)

const maxSubjectLength = 512

// ValidateSubject checks a concrete subject: non-empty dot-separated
// tokens without wildcards or whitespace.
func ValidateSubject(subject string) error {
	return validate(subject, false)
}

// ValidatePattern checks a subscription pattern. "*" may replace any
// token; ">" may only appear as the last token.
func ValidatePattern(pattern string) error {
	return validate(pattern, true)
}

func validate(subject string, allowWildcards bool) error {
	if subject == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSubject)
	}
	if len(subject) > maxSubjectLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidSubject, len(subject), maxSubjectLength)
	}
	tokens := strings.Split(subject, ".")
	for index, token := range tokens {
		if token == "" {
			return fmt.Errorf("%w: %q has an empty token", ErrInvalidSubject, subject)
		}
		if strings.ContainsAny(token, " \t\r\n") {
			return fmt.Errorf("%w: %q contains whitespace", ErrInvalidSubject, subject)
		}
		switch {
		case token == "*" || token == ">":
			if !allowWildcards {
				return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidSubject, subject)
			}
			if token == ">" && index != len(tokens)-1 {
				return fmt.Errorf("%w: %q has '>' before the last token", ErrInvalidSubject, subject)
			}
		case strings.ContainsAny(token, "*>"):
			return fmt.Errorf("%w: %q has a wildcard inside a token", ErrInvalidSubject, subject)
		}
	}
	return nil
}

// Match reports whether subject matches pattern. Both are assumed
// valid.
func Match(pattern, subject string) bool {
	for {
		patternToken, patternRest, patternMore := strings.Cut(pattern, ".")
		subjectToken, subjectRest, subjectMore := strings.Cut(subject, ".")

		switch patternToken {
		case ">":
			return true
		case "*":
		default:
			if patternToken != subjectToken {
				return false
			}
		}
		if !patternMore || !subjectMore {
			return patternMore == subjectMore
		}
		pattern, subject = patternRest, subjectRest
	}
}
