package step

import "strings"

// render replaces every "{{ name }}" placeholder in template with the
// variable's rendered value, one variable at a time over the whole
// template (spec.md §4.4). This mirrors the teacher's own interpolate()
// (src/compiler/compiler.go), generalized from its "[param]" delimiter to
// the "{{ name }}" delimiter this system's templates use — still a
// single-pass ReplaceAll loop over the variable map, not a templating
// engine, because unknown variables must be left exactly as written
// rather than erroring.
func render(template string, vars map[string]string) string {
	result := template
	for name, value := range vars {
		placeholder := "{{ " + name + " }}"
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// defaultDoneTail is appended when a step configures neither termination
// nor continuation, so it can never retry silently forever (spec.md §4.4,
// §9 "Open questions").
const defaultDoneTail = "When you complete this task, print: ✓ DONE"

// effectivePrompt builds the rendered template plus the trailing sentinel
// instruction block (spec.md §4.4).
func effectivePrompt(template string, vars map[string]string, successSentinel, continuationSentinel string, hasTermination, hasContinuation bool) string {
	rendered := render(template, vars)

	var tail strings.Builder
	switch {
	case hasTermination && hasContinuation:
		tail.WriteString("When you complete this task, print: " + successSentinel)
		tail.WriteString("\nIf you need to retry or continue, print: " + continuationSentinel)
	case hasTermination:
		tail.WriteString("When you complete this task, print: " + successSentinel)
	case hasContinuation:
		tail.WriteString("If you need to retry or continue, print: " + continuationSentinel)
	default:
		tail.WriteString(defaultDoneTail)
	}

	return rendered + "\n\n" + tail.String()
}
