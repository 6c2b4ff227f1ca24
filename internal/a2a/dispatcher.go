package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"routa/internal/coordination"
	"routa/internal/coordination/tools"
	coorderrors "routa/internal/shared/errors"
	"routa/internal/shared/logging"
	id "routa/internal/shared/utils/id"
)

const expectedFormatHint = `Expected JSON format: {"command": "<name>", "...": "<command arguments>"}`

// Dispatcher turns inbound A2A text payloads into coordination tool calls.
// The reply payload is either the successful tool's data or a JSON error
// object; malformed JSON gets a plain-text error with a format hint.
type Dispatcher struct {
	store  coordination.Store
	tools  map[string]tools.Tool
	logger logging.Logger
}

// New constructs a dispatcher over the agent tool surface.
func New(store coordination.Store, agentTools *tools.AgentTools, logger logging.Logger) *Dispatcher {
	byName := make(map[string]tools.Tool)
	for _, tool := range agentTools.Tools() {
		byName[tool.Descriptor.Name] = tool
	}
	return &Dispatcher{store: store, tools: byName, logger: logging.OrNop(logger)}
}

// Handle processes one inbound message payload and returns the reply payload.
func (d *Dispatcher) Handle(payload string) string {
	var request map[string]any
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return fmt.Sprintf("Error: %v\n\n%s", err, expectedFormatHint)
	}

	command, _ := request["command"].(string)
	if command == "" {
		return errorReply(coorderrors.BadInput("missing required field: command"))
	}
	delete(request, "command")

	d.logger.Debug("A2A command: %s", command)

	switch command {
	case "initialize":
		return d.initialize(request)
	case "create_task":
		return d.createTask(request)
	}

	tool, ok := d.tools[command]
	if !ok {
		return errorReply(coorderrors.BadInput("unknown command: %s", command))
	}

	outcome := tool.Run(request)
	if !outcome.Success {
		err := outcome.Err
		if err == nil {
			err = coorderrors.New(coorderrors.KindBadInput, "command %s failed", command)
		}
		return errorReply(err)
	}
	return outcome.Data
}

func (d *Dispatcher) initialize(request map[string]any) string {
	workspaceID, _ := request["workspaceId"].(string)
	if workspaceID == "" {
		return errorReply(coorderrors.BadInput("missing required field: workspaceId"))
	}
	routaID, err := d.store.InitializeWorkspace(workspaceID)
	if err != nil {
		return errorReply(err)
	}
	return routaID
}

// createTask writes a task record directly without parsing markdown.
func (d *Dispatcher) createTask(request map[string]any) string {
	title, _ := request["title"].(string)
	workspaceID, _ := request["workspaceId"].(string)
	if title == "" {
		return errorReply(coorderrors.BadInput("missing required field: title"))
	}
	if workspaceID == "" {
		return errorReply(coorderrors.BadInput("missing required field: workspaceId"))
	}

	objective, _ := request["objective"].(string)
	now := time.Now()
	task := coordination.Task{
		ID:                   id.NewTaskID(),
		Title:                title,
		Objective:            objective,
		Scope:                stringSlice(request["scope"]),
		AcceptanceCriteria:   stringSlice(request["acceptanceCriteria"]),
		VerificationCommands: stringSlice(request["verificationCommands"]),
		Status:               coordination.TaskPending,
		WorkspaceID:          workspaceID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := d.store.SaveTask(task); err != nil {
		return errorReply(err)
	}
	return task.ID
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

func errorReply(err error) string {
	reply, marshalErr := json.Marshal(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
	if marshalErr != nil {
		return fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	}
	return string(reply)
}
