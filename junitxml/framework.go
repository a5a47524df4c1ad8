package junitxml

import "strings"

var vitestSuffixes = []string{".test.ts", ".test.js", ".spec.ts", ".spec.js"}

func looksLikeFilePath(s string) bool {
	if strings.ContainsRune(s, '/') {
		return true
	}
	for _, suf := range vitestSuffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return strings.HasSuffix(s, ".py") || strings.HasSuffix(s, ".php")
}

func isPytestClassname(classname string) bool {
	idx := strings.LastIndexByte(classname, '.')
	if idx < 0 || idx == len(classname)-1 {
		return false
	}
	return strings.HasPrefix(classname[idx+1:], "Test")
}

func isPHPUnitClassname(classname, filename string) bool {
	if strings.ContainsRune(classname, '\\') {
		return true
	}
	if strings.ContainsRune(classname, '.') && strings.HasSuffix(filename, ".php") {
		return true
	}
	return false
}

// detectFramework implements spec.md's framework-detection heuristic.
// It is advisory and run once over the fully-collected testrun set;
// it never mutates any field besides feeding computed_name.
func detectFramework(testsuiteNames, suiteFileAttrs []string, runs []*pendingRun) string {
	for _, name := range testsuiteNames {
		if name == "pytest" {
			return frameworkPytest
		}
	}
	for _, r := range runs {
		if isPytestClassname(r.classname) {
			return frameworkPytest
		}
	}

	for _, f := range suiteFileAttrs {
		if strings.HasSuffix(f, ".php") {
			return frameworkPHPUnit
		}
	}
	for _, r := range runs {
		filename := ""
		if r.filename != nil {
			filename = *r.filename
		}
		if isPHPUnitClassname(r.classname, filename) {
			return frameworkPHPUnit
		}
	}

	for _, r := range runs {
		for _, suf := range vitestSuffixes {
			if strings.HasSuffix(r.classname, suf) {
				return frameworkVitest
			}
		}
	}

	for _, name := range testsuiteNames {
		if strings.EqualFold(name, "jest tests") {
			return frameworkJest
		}
	}
	if len(runs) > 0 {
		allMatch := true
		for _, r := range runs {
			// Jest titles read as sentences ("renders pull title"); a
			// bare identifier like ctest's "a_unit_test" never carries
			// a space, so require one to keep generic single-token
			// suites (ctest, unnamed) out of this fallback.
			if r.name != r.classname || looksLikeFilePath(r.name) || !strings.ContainsRune(r.name, ' ') {
				allMatch = false
				break
			}
		}
		if allMatch {
			return frameworkJest
		}
	}

	return frameworkUnknown
}

const (
	frameworkPytest  = "Pytest"
	frameworkJest    = "Jest"
	frameworkVitest  = "Vitest"
	frameworkPHPUnit = "PHPUnit"
	frameworkUnknown = "Unknown"
)
