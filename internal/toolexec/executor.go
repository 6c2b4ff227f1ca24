package toolexec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"routa/internal/coordination/tools"
	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
	"routa/internal/toolcall"
)

// Result is the outcome of one text-based tool invocation.
type Result struct {
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Output   string `json:"output"`
}

// Executor dispatches extracted tool calls: built-in file tools resolved
// against a working directory, plus any registered typed tools.
type Executor struct {
	cwd    string
	extra  map[string]tools.Tool
	logger logging.Logger
}

// New constructs an executor rooted at cwd with the given additional tools.
func New(cwd string, extra []tools.Tool, logger logging.Logger) *Executor {
	abs, err := filepath.Abs(filepath.Clean(cwd))
	if err != nil {
		abs = filepath.Clean(cwd)
	}
	byName := make(map[string]tools.Tool, len(extra))
	for _, tool := range extra {
		byName[tool.Descriptor.Name] = tool
	}
	return &Executor{cwd: abs, extra: byName, logger: logging.OrNop(logger)}
}

// Descriptors returns the descriptors of every registered additional tool,
// sorted by name, for prompt construction.
func (e *Executor) Descriptors() []tools.Descriptor {
	out := make([]tools.Descriptor, 0, len(e.extra))
	for _, tool := range e.extra {
		out = append(out, tool.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one tool call. Errors never propagate: every failure is
// captured into a Result with success=false.
func (e *Executor) Execute(call toolcall.Call) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tool %s panicked: %v", call.Name, r)
			result = Result{ToolName: call.Name, Success: false, Output: fmt.Sprintf("Error: %v", r)}
		}
	}()

	switch call.Name {
	case "read_file":
		return e.readFile(call)
	case "list_files":
		return e.listFiles(call)
	case "write_file":
		return Result{
			ToolName: "write_file",
			Success:  false,
			Output:   "Error: write_file is disabled. Delegate implementation work by emitting an @@@task block instead.",
		}
	}

	tool, ok := e.extra[call.Name]
	if !ok {
		return Result{
			ToolName: call.Name,
			Success:  false,
			Output:   fmt.Sprintf("Error: unknown tool %q. Available tools: %s", call.Name, strings.Join(e.availableNames(), ", ")),
		}
	}

	args := rebuildArguments(call.Arguments, tool.Descriptor)
	outcome := tool.Run(args)
	if !outcome.Success {
		msg := "tool failed"
		if outcome.Err != nil {
			msg = coorderrors.FormatForLLM(outcome.Err)
		}
		return Result{ToolName: call.Name, Success: false, Output: "Error: " + msg}
	}
	return Result{ToolName: call.Name, Success: true, Output: outcome.Data}
}

// ExecuteAll runs every call in order.
func (e *Executor) ExecuteAll(calls []toolcall.Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.Execute(call))
	}
	return results
}

func (e *Executor) availableNames() []string {
	names := []string{"read_file", "list_files"}
	for name := range e.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolvePath joins path against the executor's cwd and rejects any result
// that escapes it.
func (e *Executor) resolvePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	var resolved string
	if filepath.IsAbs(cleaned) {
		resolved = cleaned
	} else {
		resolved = filepath.Clean(filepath.Join(e.cwd, cleaned))
	}
	if !pathWithinBase(e.cwd, resolved) {
		return "", coorderrors.AccessDenied("path %q escapes the working directory", path)
	}
	return resolved, nil
}

func pathWithinBase(base, candidate string) bool {
	if base == candidate {
		return true
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(candidate, prefix)
}

func (e *Executor) readFile(call toolcall.Call) Result {
	path := strings.TrimSpace(call.Arguments["path"])
	if path == "" {
		return Result{ToolName: "read_file", Success: false, Output: "Error: missing required parameter: path"}
	}

	resolved, err := e.resolvePath(path)
	if err != nil {
		return Result{ToolName: "read_file", Success: false, Output: "Error: " + err.Error()}
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return Result{ToolName: "read_file", Success: false, Output: fmt.Sprintf("Error: file not found: %s", path)}
	}
	if info.IsDir() || !info.Mode().IsRegular() {
		return Result{ToolName: "read_file", Success: false, Output: fmt.Sprintf("Error: not a regular file: %s", path)}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Result{ToolName: "read_file", Success: false, Output: "Error: " + err.Error()}
	}
	return Result{ToolName: "read_file", Success: true, Output: string(data)}
}

func (e *Executor) listFiles(call toolcall.Call) Result {
	path := strings.TrimSpace(call.Arguments["path"])
	if path == "" {
		path = "."
	}

	resolved, err := e.resolvePath(path)
	if err != nil {
		return Result{ToolName: "list_files", Success: false, Output: "Error: " + err.Error()}
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Result{ToolName: "list_files", Success: false, Output: fmt.Sprintf("Error: directory not found: %s", path)}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&sb, "[dir] %s\n", entry.Name())
		} else {
			fmt.Fprintf(&sb, "[file] %s\n", entry.Name())
		}
	}
	return Result{ToolName: "list_files", Success: true, Output: strings.TrimRight(sb.String(), "\n")}
}

// rebuildArguments reconstructs typed JSON values from the stringly-typed
// extraction by consulting the tool's parameter descriptor.
func rebuildArguments(raw map[string]string, desc tools.Descriptor) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		spec, ok := desc.Param(key)
		if !ok {
			out[key] = value
			continue
		}
		out[key] = coerceValue(value, spec.Type)
	}
	return out
}

func coerceValue(value string, paramType tools.ParamType) any {
	switch paramType {
	case tools.TypeBoolean:
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		return strings.EqualFold(strings.TrimSpace(value), "true")
	case tools.TypeInteger:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
		return int64(0)
	case tools.TypeFloat:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
		return float64(0)
	case tools.TypeList:
		var parsed []any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			return parsed
		}
		// A bare value wraps into a singleton array.
		return []any{value}
	case tools.TypeObject:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			return parsed
		}
		// On parse failure the raw string passes through as a primitive.
		return value
	default:
		return value
	}
}

// FormatResults renders results in the tool_result grammar fed back to the LLM.
func FormatResults(results []Result) string {
	var sb strings.Builder
	for _, result := range results {
		status := "success"
		if !result.Success {
			status = "error"
		}
		sb.WriteString("<tool_result>\n")
		sb.WriteString("<tool_name>" + result.ToolName + "</tool_name>\n")
		sb.WriteString("<status>" + status + "</status>\n")
		sb.WriteString("<output>\n")
		sb.WriteString(result.Output)
		sb.WriteString("\n</output>\n")
		sb.WriteString("</tool_result>\n")
	}
	return sb.String()
}
