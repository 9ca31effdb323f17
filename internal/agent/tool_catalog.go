package agent

import "github.com/agentcore-dev/agentcore/pkg/models"

// coreTools is the fixed catalog of the always-enabled communication and
// todo groups (§3, §4.1). Every other tool in a deployment belongs to an
// optional group registered by the host via Registry.RegisterGroup.
func coreTools() []models.ToolDefinition {
	return []models.ToolDefinition{
		{
			Name:        "tell_to_user",
			Description: "Send an informational message to the user without ending the run.",
			GroupID:     models.GroupCommunication,
			Parameters: objectSchema(map[string]any{
				"message": stringProp("Text to show the user."),
			}, "message"),
		},
		{
			Name:        "ask_to_user",
			Description: "Ask the user a clarifying question and wait for their reply.",
			GroupID:     models.GroupCommunication,
			Parameters: objectSchema(map[string]any{
				"question": stringProp("Question to ask the user."),
			}, "question"),
		},
		{
			Name:        "final_response",
			Description: "Terminate the run with a final answer for the user. Must be called exactly once, when the task is complete.",
			GroupID:     models.GroupCommunication,
			Parameters: objectSchema(map[string]any{
				"message": stringProp("The final answer to return to the user."),
			}, "message"),
		},
		{
			Name:        "write_todos",
			Description: "Replace the current TODO list with a new ordered list of tasks.",
			GroupID:     models.GroupTodo,
			Parameters: objectSchema(map[string]any{
				"todos": map[string]any{
					"type": "array",
					"items": objectSchema(map[string]any{
						"id":    stringProp("Unique id for the todo."),
						"title": stringProp("Human-readable task description."),
					}, "id", "title"),
				},
			}, "todos"),
		},
		{
			Name:        "update_todos",
			Description: "Update the status of one or more existing TODO items by id.",
			GroupID:     models.GroupTodo,
			Parameters: objectSchema(map[string]any{
				"updates": map[string]any{
					"type": "array",
					"items": objectSchema(map[string]any{
						"id":     stringProp("Id of the todo to update."),
						"status": stringProp("New status: pending, in_progress, completed, or failed."),
						"note":   stringProp("Optional note about the update."),
					}, "id", "status"),
				},
			}, "updates"),
		},
		{
			Name:        "get_todo_list",
			Description: "Return the current TODO list and each item's status.",
			GroupID:     models.GroupTodo,
			Parameters:  objectSchema(map[string]any{}),
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
