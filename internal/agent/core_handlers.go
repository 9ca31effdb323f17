package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

// BindDefaultCoreHandlers wires the six always-enabled communication and
// todo tools to concrete implementations backed by io and state. This is
// the "install tool-callback wiring" step of run startup (§4.6).
func BindDefaultCoreHandlers(registry *Registry, io AgentIO, state *models.AgentRunState) error {
	return registry.BindCoreHandlers(CoreHandlers{
		TellToUser:    tellToUserHandler(io),
		AskToUser:     askToUserHandler(io),
		FinalResponse: finalResponseHandler(),
		WriteTodos:    writeTodosHandler(io, state),
		UpdateTodos:   updateTodosHandler(io, state),
		GetTodoList:   getTodoListHandler(state),
	})
}

func tellToUserHandler(io AgentIO) ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		message, _ := args["message"].(string)
		io.Broadcast("tellUser", message)
		return ToolHandlerResult{Success: true, Result: message}
	}
}

func askToUserHandler(io AgentIO) ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		question, _ := args["question"].(string)
		answer, err := io.AskUser(ctx, question)
		if err != nil {
			return ToolHandlerResult{Success: false, Error: err.Error()}
		}
		return ToolHandlerResult{Success: true, Result: answer}
	}
}

// finalResponseHandler just echoes the message back as the result; the
// Agent Loop special-cases the tool name "final_response" itself rather
// than relying on handler metadata (§4.6 step 8g).
func finalResponseHandler() ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		message, _ := args["message"].(string)
		return ToolHandlerResult{Success: true, Result: message}
	}
}

func writeTodosHandler(io AgentIO, state *models.AgentRunState) ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		raw, _ := args["todos"].([]any)
		todos := make([]models.TodoItem, 0, len(raw))
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, _ := obj["id"].(string)
			title, _ := obj["title"].(string)
			todos = append(todos, models.TodoItem{ID: id, Title: title, Status: models.TodoPending})
		}
		state.CurrentTodos = todos
		io.Broadcast("todoUpdate", models.CloneTodos(state.CurrentTodos))
		return ToolHandlerResult{Success: true, Result: fmt.Sprintf("Replaced TODO list with %d item(s).", len(todos))}
	}
}

func updateTodosHandler(io AgentIO, state *models.AgentRunState) ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		raw, _ := args["updates"].([]any)
		updated := 0
		for _, item := range raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id, _ := obj["id"].(string)
			status, _ := obj["status"].(string)
			note, _ := obj["note"].(string)
			for i := range state.CurrentTodos {
				if state.CurrentTodos[i].ID == id {
					state.CurrentTodos[i].Status = models.TodoStatus(status)
					state.CurrentTodos[i].Note = note
					updated++
				}
			}
		}
		io.Broadcast("todoUpdate", models.CloneTodos(state.CurrentTodos))
		return ToolHandlerResult{Success: true, Result: fmt.Sprintf("Updated %d todo(s).", updated)}
	}
}

func getTodoListHandler(state *models.AgentRunState) ToolHandler {
	return func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
		if len(state.CurrentTodos) == 0 {
			return ToolHandlerResult{Success: true, Result: "(no todos)"}
		}
		var b strings.Builder
		for _, t := range state.CurrentTodos {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", t.ID, t.Title, t.Status)
		}
		return ToolHandlerResult{Success: true, Result: strings.TrimRight(b.String(), "\n")}
	}
}
