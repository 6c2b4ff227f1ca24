package toolcall

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Call is a tool invocation parsed from LLM output. Argument values are kept
// in their raw string form; the text-based executor rebuilds typed values
// from the tool's parameter descriptor.
type Call struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

var (
	// xmlCallPattern matches <tool_call>…</tool_call> regions; (?s) lets the
	// body span lines.
	xmlCallPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	// fencedPattern matches ```json … ``` and plain ``` … ``` blocks.
	fencedPattern = regexp.MustCompile("(?s)```(?:json)?[ \t]*\r?\n(.*?)```")
	// toolNamePattern validates extracted tool names.
	toolNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// Extract parses tool invocations from an LLM response. The XML-tagged form
// wins outright: when at least one well-formed <tool_call> region exists,
// fenced code blocks are ignored. Malformed regions are skipped, never fatal.
func Extract(response string) []Call {
	if calls := extractXML(response); len(calls) > 0 {
		return calls
	}
	return extractFenced(response)
}

// HasToolCalls reports whether the response contains the XML form or yields
// at least one extractable call.
func HasToolCalls(response string) bool {
	if xmlCallPattern.MatchString(response) {
		return true
	}
	return len(Extract(response)) > 0
}

// RemoveToolCalls strips every XML tool-call occurrence and trims the rest.
func RemoveToolCalls(response string) string {
	return strings.TrimSpace(xmlCallPattern.ReplaceAllString(response, ""))
}

func extractXML(response string) []Call {
	var calls []Call
	for _, match := range xmlCallPattern.FindAllStringSubmatch(response, -1) {
		if call, ok := decodeCall(match[1]); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func extractFenced(response string) []Call {
	var calls []Call
	seen := make(map[string]bool)
	for _, match := range fencedPattern.FindAllStringSubmatch(response, -1) {
		call, ok := decodeCall(match[1])
		if !ok {
			continue
		}
		if seen[call.Name] {
			continue
		}
		seen[call.Name] = true
		calls = append(calls, call)
	}
	return calls
}

// decodeCall unmarshals one {"name": …, "arguments": {…}} region, repairing
// the JSON first when the strict parse fails.
func decodeCall(raw string) (Call, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Call{}, false
	}

	var payload struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return Call{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return Call{}, false
		}
	}

	if !toolNamePattern.MatchString(payload.Name) {
		return Call{}, false
	}

	return Call{Name: payload.Name, Arguments: stringifyArguments(payload.Arguments)}, true
}

// stringifyArguments coerces every argument value to its string form:
// primitives keep their content, nested objects and arrays keep their JSON
// serialization.
func stringifyArguments(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for key, value := range args {
		out[key] = stringifyValue(value)
	}
	return out
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
