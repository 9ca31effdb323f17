package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/agentcore-dev/agentcore/internal/llmclient"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// maxPlannerAskRounds bounds how many ask_to_user round-trips the Planner
// will tolerate before giving up (an unbounded loop here would let a
// confused model stall run startup indefinitely).
const maxPlannerAskRounds = 3

const plannerSystemPrompt = `You are the planning stage of a coding agent. Decide whether the user's request can be answered directly in conversation, or whether it requires doing work in the project. Call respond_directly for requests that are purely conversational or trivially answerable without tools. Call create_plan for anything that requires reading, writing, or running things in the project, breaking the work into an ordered TODO list. If you need more information before you can plan, call ask_to_user first.`

// PlannerResult is the Planner's (C7) output: either a direct response or
// a TODO plan, plus any clarification Q&A gathered along the way.
type PlannerResult struct {
	IsDirectResponse      bool
	DirectResponse        string
	Todos                 []models.TodoItem
	Title                 string
	Complexity            string
	ClarificationMessages []models.Message
}

// AskUserFunc prompts the user with a question and blocks for their
// answer. The Agent Loop supplies the real UI-backed implementation; the
// Planner treats it as an opaque callback.
type AskUserFunc func(ctx context.Context, question string) (string, error)

// Planner implements C7: a single forced-tool-call decision between a
// direct response and a TODO plan, with an optional ask_to_user detour.
type Planner struct {
	client  *llmclient.Client
	askUser AskUserFunc
}

// NewPlanner builds a Planner over client, using askUser to resolve any
// ask_to_user tool calls the planning model makes.
func NewPlanner(client *llmclient.Client, askUser AskUserFunc) *Planner {
	return &Planner{client: client, askUser: askUser}
}

func plannerTools() []models.ToolDefinition {
	return []models.ToolDefinition{
		{
			Name:        "respond_directly",
			Description: "Answer the user's request directly, without doing any project work.",
			Parameters:  objectSchema(map[string]any{"response": stringProp("The direct answer to give the user.")}, "response"),
		},
		{
			Name:        "create_plan",
			Description: "Break the user's request into an ordered TODO list.",
			Parameters: objectSchema(map[string]any{
				"title":      stringProp("Short title for this unit of work."),
				"complexity": stringProp("One of: low, medium, high."),
				"todos": map[string]any{
					"type": "array",
					"items": objectSchema(map[string]any{
						"id":    stringProp("Unique id for the todo."),
						"title": stringProp("Human-readable task description."),
					}, "id", "title"),
				},
			}, "title", "complexity", "todos"),
		},
		{
			Name:        "ask_to_user",
			Description: "Ask the user a clarifying question before planning.",
			Parameters:  objectSchema(map[string]any{"question": stringProp("Question to ask the user.")}, "question"),
		},
	}
}

// Plan runs the planning decision for userMessage given existingHistory.
func (p *Planner) Plan(ctx context.Context, model, userMessage string, existingHistory []models.Message) (PlannerResult, error) {
	messages := models.CloneMessages(existingHistory)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: userMessage})

	var clarifications []models.Message
	tools := plannerTools()

	for round := 0; round <= maxPlannerAskRounds; round++ {
		resp, err := p.client.Complete(ctx, llmclient.Request{
			Model:     model,
			System:    plannerSystemPrompt,
			Messages:  messages,
			Tools:     tools,
			ForceTool: true,
		})
		if err != nil {
			return PlannerResult{}, fmt.Errorf("planner: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return PlannerResult{}, fmt.Errorf("planner: model returned no tool call")
		}
		call := resp.ToolCalls[0]

		var args map[string]any
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return PlannerResult{}, fmt.Errorf("planner: invalid arguments for %s: %w", call.Name, err)
		}

		switch call.Name {
		case "respond_directly":
			response, _ := args["response"].(string)
			return PlannerResult{IsDirectResponse: true, DirectResponse: response, ClarificationMessages: clarifications}, nil

		case "create_plan":
			title, _ := args["title"].(string)
			complexity, _ := args["complexity"].(string)
			todos, err := parsePlannedTodos(args["todos"])
			if err != nil {
				return PlannerResult{}, fmt.Errorf("planner: %w", err)
			}
			return PlannerResult{
				Todos:                 todos,
				Title:                 title,
				Complexity:            complexity,
				ClarificationMessages: clarifications,
			}, nil

		case "ask_to_user":
			question, _ := args["question"].(string)
			answer, err := p.askUser(ctx, question)
			if err != nil {
				answer = ""
			}
			clarifications = append(clarifications,
				models.Message{Role: models.RoleAssistant, Content: question},
				models.Message{Role: models.RoleUser, Content: answer},
			)
			messages = append(messages,
				models.Message{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{call}},
				models.Message{Role: models.RoleTool, ToolCallID: call.ID, Content: answer},
			)

		default:
			return PlannerResult{}, fmt.Errorf("planner: unexpected tool call %q", call.Name)
		}
	}

	return PlannerResult{}, fmt.Errorf("planner: exceeded %d ask_to_user rounds without a decision", maxPlannerAskRounds)
}

func parsePlannedTodos(raw any) ([]models.TodoItem, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("todos must be an array")
	}
	out := make([]models.TodoItem, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each todo must be an object")
		}
		id, _ := obj["id"].(string)
		title, _ := obj["title"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, models.TodoItem{ID: id, Title: title, Status: models.TodoPending})
	}
	return out, nil
}
