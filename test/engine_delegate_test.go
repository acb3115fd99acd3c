package test

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// TestEngine_DelegateMethodComplexity ensures that methods on Engine stay
// below a maximum line count. Methods exceeding this threshold likely contain
// inline business logic that should be in internal/flows/*.
//
// Allowed exceptions are explicitly listed below with mandatory metadata:
// - Reason: why the exception exists
// - Target: the internal/flows file it should migrate to
// - RemoveBy: a version or milestone when the exception should be removed
//
// Exceptions without this metadata are rejected at test time to prevent
// permanent exception creep.
func TestEngine_DelegateMethodComplexity(t *testing.T) {
	const maxLines = 50

	type delegateException struct {
		limit    int
		reason   string
		target   string
		removeBy string
	}

	exceptions := map[string]delegateException{
		"Authenticate": {90, "gate result to metric/audit/log mapping", "internal/flows/gate.go", "v1.0.0"},
	}

	for name, exc := range exceptions {
		if exc.reason == "" {
			t.Errorf("exception %q missing reason", name)
		}
		if exc.target == "" {
			t.Errorf("exception %q missing target flow file", name)
		}
		if exc.removeBy == "" {
			t.Errorf("exception %q missing removeBy version/milestone", name)
		}
	}

	files, err := filepath.Glob("../engine*.go")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no engine sources found")
	}

	funcSig := regexp.MustCompile(`^func \(e \*Engine\) ([A-Za-z]\w*)\(`)

	type methodInfo struct {
		name  string
		start int
		depth int
	}

	var violations []string
	for _, filename := range files {
		if strings.HasSuffix(filename, "_test.go") {
			continue
		}

		f, err := os.Open(filename)
		if err != nil {
			t.Fatalf("open %s: %v", filename, err)
		}

		scanner := bufio.NewScanner(f)
		lineNum := 0
		var current *methodInfo

		for scanner.Scan() {
			lineNum++
			line := scanner.Text()

			if current == nil {
				if m := funcSig.FindStringSubmatch(line); m != nil {
					current = &methodInfo{
						name:  m[1],
						start: lineNum,
						depth: strings.Count(line, "{") - strings.Count(line, "}"),
					}
				}
				continue
			}

			current.depth += strings.Count(line, "{") - strings.Count(line, "}")
			if current.depth <= 0 {
				length := lineNum - current.start + 1
				limit := maxLines
				if exc, ok := exceptions[current.name]; ok {
					limit = exc.limit
				}
				if length > limit {
					violations = append(violations, current.name)
					t.Errorf("%s:%d: method %s is %d lines (limit %d); move business logic to internal/flows/",
						filename, current.start, current.name, length, limit)
				}
				current = nil
			}
		}

		if err := scanner.Err(); err != nil {
			t.Fatalf("scan %s: %v", filename, err)
		}
		f.Close()
	}

	if len(violations) > 0 {
		t.Logf("Detected %d method(s) exceeding their line budget. "+
			"Business logic should live in internal/flows/*, "+
			"root methods should be thin delegates.",
			len(violations))
	}
}
