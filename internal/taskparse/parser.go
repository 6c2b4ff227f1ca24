package taskparse

import (
	"regexp"
	"strings"
	"time"

	"routa/internal/coordination"
	id "routa/internal/shared/utils/id"
)

// taskBlockPattern captures the body between @@@task and the closing @@@.
// (?s) lets . cross newlines; the lazy body takes the shortest match so
// back-to-back blocks do not merge.
var taskBlockPattern = regexp.MustCompile(`(?s)@@@task[ \t]*\r?\n(.*?)\r?\n?@@@`)

const defaultTitle = "Untitled Task"

type section int

const (
	sectionNone section = iota
	sectionObjective
	sectionScope
	sectionDone
	sectionVerification
)

// sectionAliases maps each canonical section to its accepted header spellings.
// Matching is case-sensitive; the first alias that matches wins.
var sectionAliases = []struct {
	section section
	aliases []string
}{
	{sectionObjective, []string{"Objective", "目标", "Goal", "目的"}},
	{sectionScope, []string{"Scope", "范围", "作用域"}},
	{sectionDone, []string{"Definition of Done", "完成标准", "验收标准", "Acceptance Criteria", "Done Criteria", "完成条件"}},
	{sectionVerification, []string{"Verification", "验证", "Verify", "验证方法", "测试验证"}},
}

// Parse extracts every task record from loosely-formatted markdown. It never
// fails: text without a well-formed @@@task pair yields nil.
func Parse(text, workspaceID string) []coordination.Task {
	var tasks []coordination.Task
	for _, match := range taskBlockPattern.FindAllStringSubmatch(text, -1) {
		body := match[1]
		for _, sub := range splitSubBlocks(body) {
			tasks = append(tasks, parseSubBlock(sub, workspaceID))
		}
	}
	return tasks
}

// splitSubBlocks splits a block body at every level-1 header line that sits
// outside a triple-backtick fence. Zero or one header yields the body as a
// single sub-block; otherwise each header starts its own sub-block.
func splitSubBlocks(body string) []string {
	lines := strings.Split(body, "\n")

	var headerLines []int
	inFence := false
	for i, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			headerLines = append(headerLines, i)
		}
	}

	if len(headerLines) < 2 {
		return []string{body}
	}

	subBlocks := make([]string, 0, len(headerLines))
	for idx, start := range headerLines {
		end := len(lines)
		if idx+1 < len(headerLines) {
			end = headerLines[idx+1]
		}
		subBlocks = append(subBlocks, strings.Join(lines[start:end], "\n"))
	}
	return subBlocks
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func parseSubBlock(block, workspaceID string) coordination.Task {
	lines := strings.Split(block, "\n")

	title := defaultTitle
	inFence := false
	for _, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			if t := strings.TrimSpace(strings.TrimPrefix(line, "# ")); t != "" {
				title = t
			}
			break
		}
	}

	sections := map[section][]string{}
	current := sectionNone
	inFence = false
	for _, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			if current != sectionNone {
				sections[current] = append(sections[current], line)
			}
			continue
		}
		if !inFence && strings.HasPrefix(line, "## ") {
			current = matchSection(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			continue
		}
		if !inFence && strings.HasPrefix(line, "# ") {
			current = sectionNone
			continue
		}
		if current != sectionNone {
			sections[current] = append(sections[current], line)
		}
	}

	now := time.Now()
	return coordination.Task{
		ID:                   id.NewTaskID(),
		Title:                title,
		Objective:            strings.TrimSpace(strings.Join(sections[sectionObjective], "\n")),
		Scope:                listItems(sections[sectionScope]),
		AcceptanceCriteria:   listItems(sections[sectionDone]),
		VerificationCommands: listItems(sections[sectionVerification]),
		Status:               coordination.TaskPending,
		WorkspaceID:          workspaceID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// matchSection resolves a `##` header against the alias table. Unknown
// headers terminate the previous section without starting a new one.
func matchSection(header string) section {
	header = strings.TrimRight(header, ":：")
	header = strings.TrimSpace(header)
	for _, entry := range sectionAliases {
		for _, alias := range entry.aliases {
			if header == alias || strings.HasPrefix(header, alias) {
				return entry.section
			}
		}
	}
	return sectionNone
}

// listItems keeps only lines beginning with `-`, with the dash and its
// surrounding whitespace removed.
func listItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Format renders tasks back into the @@@task grammar. Parsing the output
// reproduces the same titles and sections, which keeps Parse idempotent
// through a round-trip. Bodies never need escaping: a parsed Objective cannot
// contain an unfenced level-1 header, because parseSubBlock ends the current
// section at any such line.
func Format(tasks []coordination.Task) string {
	var sb strings.Builder
	for i, task := range tasks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("@@@task\n")
		sb.WriteString("# " + task.Title + "\n")
		if task.Objective != "" {
			sb.WriteString("## Objective\n")
			sb.WriteString(task.Objective + "\n")
		}
		writeListSection(&sb, "Scope", task.Scope)
		writeListSection(&sb, "Definition of Done", task.AcceptanceCriteria)
		writeListSection(&sb, "Verification", task.VerificationCommands)
		sb.WriteString("@@@\n")
	}
	return sb.String()
}

func writeListSection(sb *strings.Builder, header string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("## " + header + "\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
}
