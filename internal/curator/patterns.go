package curator

import "regexp"

// #region patterns

// piiPatterns match personal or secret material that must never enter the
// training stream.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),              // email
	regexp.MustCompile(`\+?\d[\d\s().-]{8,}\d`),                                       // phone
	regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----`),                     // private key
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),                                        // aws access key
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|password|token)\s*[:=]\s*\S{8,}`), // credential assignment
}

// forbiddenPatterns match phrases that indicate prompt-injection or policy
// bypass attempts.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (?:all )?previous instructions`),
	regexp.MustCompile(`(?i)disregard (?:all )?(?:prior|previous|earlier) (?:instructions|rules)`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)pretend you (?:are|have) no (?:rules|restrictions)`),
}

// #endregion patterns

// #region checks

// ContainsPII reports whether text matches any PII or secret pattern.
func ContainsPII(text string) bool {
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ViolatesForbidden reports whether text matches a forbidden-phrase pattern.
func ViolatesForbidden(text string) bool {
	for _, p := range forbiddenPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// #endregion checks
