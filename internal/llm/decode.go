package llm

import (
	"fmt"
	"strings"
)

// ExtractPayload recovers the structured payload embedded in generated
// prose: code-fence markers are stripped, then the slice between the first
// '{' and the last '}' is returned. Surrounding prose before and after the
// payload is tolerated.
func ExtractPayload(raw string) (string, error) {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")

	first := strings.Index(clean, "{")
	last := strings.LastIndex(clean, "}")
	if first == -1 || last == -1 || last < first {
		return "", fmt.Errorf("no json object in completion text")
	}
	return clean[first : last+1], nil
}
