package reliability

import (
	"errors"
	"strings"
)

// maxCauseDepth bounds the unwrap walk so cyclic or pathological chains
// cannot produce unbounded messages.
const maxCauseDepth = 5

// ExtractErrorContext builds a single human-readable message from an error
// chain. The top-level message comes first, each distinct cause follows
// separated by " | Cause: ". Causes whose text is already contained in the
// accumulated message are skipped, since wrapped errors usually repeat the
// inner text.
func ExtractErrorContext(err error) string {
	if err == nil {
		return "Unknown error"
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "Unknown error"
	}

	var b strings.Builder
	b.WriteString(msg)

	cause := errors.Unwrap(err)
	for depth := 0; cause != nil && depth < maxCauseDepth; depth++ {
		text := strings.TrimSpace(cause.Error())
		if text != "" && !strings.Contains(b.String(), text) {
			b.WriteString(" | Cause: ")
			b.WriteString(text)
		}
		cause = errors.Unwrap(cause)
	}

	return b.String()
}
