package tools

import (
	"routa/internal/coordination"
	coorderrors "routa/internal/shared/errors"
)

// Tools returns the full typed tool surface with self-describing descriptors,
// ready for registration with the text-based executor or the A2A dispatcher.
func (t *AgentTools) Tools() []Tool {
	return []Tool{
		{
			Descriptor: Descriptor{
				Name:        "list_agents",
				Description: "List every agent in a workspace with id, name, role and status",
				Params: []ParamSpec{
					{Name: "workspaceId", Type: TypeString, Required: true, Description: "Workspace to list"},
				},
			},
			Run: func(args map[string]any) Outcome {
				workspaceID, err := requiredString(args, "workspaceId")
				if err != nil {
					return Fail(err)
				}
				return t.ListAgents(workspaceID)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "create_agent",
				Description: "Create a new agent in PENDING state",
				Params: []ParamSpec{
					{Name: "name", Type: TypeString, Required: true, Description: "Display name"},
					{Name: "role", Type: TypeEnum, Required: true, Description: "ROUTA, CRAFTER or GATE", EnumValues: []string{"ROUTA", "CRAFTER", "GATE"}},
					{Name: "workspaceId", Type: TypeString, Required: true, Description: "Owning workspace"},
					{Name: "parentId", Type: TypeString, Required: false, Description: "Parent agent id"},
					{Name: "modelTier", Type: TypeEnum, Required: false, Description: "FAST, BALANCED or SMART", EnumValues: []string{"FAST", "BALANCED", "SMART"}},
				},
			},
			Run: func(args map[string]any) Outcome {
				name, err := requiredString(args, "name")
				if err != nil {
					return Fail(err)
				}
				role, err := requiredString(args, "role")
				if err != nil {
					return Fail(err)
				}
				workspaceID, err := requiredString(args, "workspaceId")
				if err != nil {
					return Fail(err)
				}
				return t.CreateAgent(name, role, workspaceID, stringArg(args, "parentId"), stringArg(args, "modelTier"))
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "get_agent_status",
				Description: "Return status, role and parent of an agent",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Agent to inspect"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				return t.GetAgentStatus(agentID)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "get_agent_summary",
				Description: "Return the latest objective, last message and task count of an agent",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Agent to summarize"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				return t.GetAgentSummary(agentID)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "read_agent_conversation",
				Description: "Read an agent's conversation in chronological order",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Agent whose conversation to read"},
					{Name: "lastN", Type: TypeInteger, Required: false, Description: "Only the most recent N messages"},
					{Name: "includeToolCalls", Type: TypeBoolean, Required: false, Description: "Include TOOL_CALL/TOOL_RESULT entries"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				return t.ReadAgentConversation(agentID, intArg(args, "lastN", 0), boolArg(args, "includeToolCalls", false))
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "message_agent",
				Description: "Send a message to another agent",
				Params: []ParamSpec{
					{Name: "fromAgentId", Type: TypeString, Required: true, Description: "Sender agent id"},
					{Name: "toAgentId", Type: TypeString, Required: true, Description: "Recipient agent id"},
					{Name: "message", Type: TypeString, Required: true, Description: "Message body"},
				},
			},
			Run: func(args map[string]any) Outcome {
				fromID, err := requiredString(args, "fromAgentId")
				if err != nil {
					return Fail(err)
				}
				toID, err := requiredString(args, "toAgentId")
				if err != nil {
					return Fail(err)
				}
				message, err := requiredString(args, "message")
				if err != nil {
					return Fail(err)
				}
				return t.MessageAgent(fromID, toID, message)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "delegate_task",
				Description: "Assign a task to an agent and start it",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Agent receiving the task"},
					{Name: "taskId", Type: TypeString, Required: true, Description: "Task to delegate"},
					{Name: "callerAgentId", Type: TypeString, Required: true, Description: "Agent performing the delegation"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				taskID, err := requiredString(args, "taskId")
				if err != nil {
					return Fail(err)
				}
				callerID, err := requiredString(args, "callerAgentId")
				if err != nil {
					return Fail(err)
				}
				return t.DelegateTask(agentID, taskID, callerID)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "report_to_parent",
				Description: "Record a completion report and notify the parent agent",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Reporting agent id"},
					{Name: "taskId", Type: TypeString, Required: true, Description: "Task being reported"},
					{Name: "summary", Type: TypeString, Required: true, Description: "What was done"},
					{Name: "filesModified", Type: TypeList, ItemType: TypeString, Required: false, Description: "Files touched"},
					{Name: "success", Type: TypeBoolean, Required: true, Description: "Whether the task succeeded"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				taskID, err := requiredString(args, "taskId")
				if err != nil {
					return Fail(err)
				}
				summary, err := requiredString(args, "summary")
				if err != nil {
					return Fail(err)
				}
				return t.ReportToParent(coordination.CompletionReport{
					AgentID:       agentID,
					TaskID:        taskID,
					Summary:       summary,
					FilesModified: stringListArg(args, "filesModified"),
					Success:       boolArg(args, "success", false),
				})
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "wake_or_create_task_agent",
				Description: "Wake the task's assignee with a message, or create a CRAFTER and delegate",
				Params: []ParamSpec{
					{Name: "taskId", Type: TypeString, Required: true, Description: "Task to route"},
					{Name: "contextMessage", Type: TypeString, Required: true, Description: "Context handed to the agent"},
					{Name: "callerAgentId", Type: TypeString, Required: true, Description: "Requesting agent"},
					{Name: "workspaceId", Type: TypeString, Required: true, Description: "Owning workspace"},
					{Name: "agentName", Type: TypeString, Required: false, Description: "Name for a newly created agent"},
					{Name: "modelTier", Type: TypeEnum, Required: false, Description: "FAST, BALANCED or SMART", EnumValues: []string{"FAST", "BALANCED", "SMART"}},
				},
			},
			Run: func(args map[string]any) Outcome {
				taskID, err := requiredString(args, "taskId")
				if err != nil {
					return Fail(err)
				}
				contextMessage, err := requiredString(args, "contextMessage")
				if err != nil {
					return Fail(err)
				}
				callerID, err := requiredString(args, "callerAgentId")
				if err != nil {
					return Fail(err)
				}
				workspaceID, err := requiredString(args, "workspaceId")
				if err != nil {
					return Fail(err)
				}
				return t.WakeOrCreateTaskAgent(taskID, contextMessage, callerID, workspaceID,
					stringArg(args, "agentName"), stringArg(args, "modelTier"))
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "send_message_to_task_agent",
				Description: "Route a message to whichever agent a task is assigned to",
				Params: []ParamSpec{
					{Name: "taskId", Type: TypeString, Required: true, Description: "Task whose assignee to message"},
					{Name: "message", Type: TypeString, Required: true, Description: "Message body"},
					{Name: "callerAgentId", Type: TypeString, Required: true, Description: "Sending agent"},
				},
			},
			Run: func(args map[string]any) Outcome {
				taskID, err := requiredString(args, "taskId")
				if err != nil {
					return Fail(err)
				}
				message, err := requiredString(args, "message")
				if err != nil {
					return Fail(err)
				}
				callerID, err := requiredString(args, "callerAgentId")
				if err != nil {
					return Fail(err)
				}
				return t.SendMessageToTaskAgent(taskID, message, callerID)
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "subscribe_to_events",
				Description: "Subscribe an agent to coordination events by type glob",
				Params: []ParamSpec{
					{Name: "agentId", Type: TypeString, Required: true, Description: "Subscribing agent"},
					{Name: "agentName", Type: TypeString, Required: true, Description: "Subscriber display name"},
					{Name: "eventTypes", Type: TypeList, ItemType: TypeString, Required: true, Description: "Event type globs, e.g. agent.*"},
					{Name: "excludeSelf", Type: TypeBoolean, Required: false, Description: "Skip events this agent caused"},
				},
			},
			Run: func(args map[string]any) Outcome {
				agentID, err := requiredString(args, "agentId")
				if err != nil {
					return Fail(err)
				}
				agentName, err := requiredString(args, "agentName")
				if err != nil {
					return Fail(err)
				}
				eventTypes := stringListArg(args, "eventTypes")
				if len(eventTypes) == 0 {
					return Fail(coorderrors.BadInput("missing required parameter: eventTypes"))
				}
				return t.SubscribeToEvents(agentID, agentName, eventTypes, boolArg(args, "excludeSelf", false))
			},
		},
		{
			Descriptor: Descriptor{
				Name:        "unsubscribe_from_events",
				Description: "Release an event subscription",
				Params: []ParamSpec{
					{Name: "subscriptionId", Type: TypeString, Required: true, Description: "Subscription to release"},
				},
			},
			Run: func(args map[string]any) Outcome {
				subID, err := requiredString(args, "subscriptionId")
				if err != nil {
					return Fail(err)
				}
				return t.UnsubscribeFromEvents(subID)
			},
		},
	}
}
