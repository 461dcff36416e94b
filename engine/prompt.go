package engine

import (
	"fmt"
	"strings"

	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/internal/util"
	"github.com/hupe1980/swarmkernel/model"
)

// maxHistoryEntries bounds how much of an agent's own history is replayed
// into the prompt on every turn (spec.md §4.H: "the last 50 entries").
const maxHistoryEntries = 50

// toolVocabularyDocs describes the fixed 7-tool surface in the inline
// @tool(args) call syntax the Tool-Call Parser recognises.
const toolVocabularyDocs = `You have access to a project workspace and the following tools. Invoke a
tool by writing it inline in your response, exactly as shown:

  @read_file("path/to/file")
  @write_file("path/to/file", """file contents""")
  @append_file("path/to/file", """text to append""")
  @list_dir("path/to/dir")
  @search_files("*.go", "search text")
  @run_command("shell command")
  @report_error("what went wrong")

Paths are relative to your project root. write_file and append_file take the
content between triple double quotes so multi-line content is safe to embed.
Tool calls are executed after your full response is generated; their results
are fed back to you as a new turn so you can continue the task.`

// composePrompt builds the full message sequence handed to a Provider for
// one turn (spec.md §4.H): system instructions, leader roster, RAG
// documents, todo checklist, tool vocabulary, the last maxHistoryEntries
// history entries, then the new user-facing message.
func composePrompt(agent core.Agent, roster []core.Agent, depth int, userMessage string) []model.Message {
	instructions, err := util.RenderTemplate(agent.Instructions, map[string]any{
		"Name":        agent.Name,
		"Role":        agent.Role,
		"ProjectRoot": agent.ProjectRoot,
		"Leader":      agent.Leader,
	})
	if err != nil {
		instructions = agent.Instructions
	}

	var sys strings.Builder
	sys.WriteString(instructions)

	if agent.Leader && depth == 0 {
		sys.WriteString("\n\n## Team roster\n")
		sys.WriteString("You can delegate subtasks to any teammate below with @delegate(Name, \"task\").\n")
		sys.WriteString("If a teammate's result reports an error, you are responsible for deciding how to handle it: retry, reassign, or surface it yourself.\n")
		for _, other := range roster {
			if other.ID == agent.ID {
				continue
			}
			sys.WriteString(fmt.Sprintf("- %s: %s, %s\n", other.Name, other.Role, other.Description))
		}
	}

	if len(agent.RagDocs) > 0 {
		sys.WriteString("\n\n## Reference documents\n")
		for _, doc := range agent.RagDocs {
			sys.WriteString(fmt.Sprintf("### %s\n%s\n\n", doc.Name, doc.Content))
		}
	}

	if len(agent.Todos) > 0 {
		sys.WriteString("\n\n## Your todo list\n")
		for _, t := range agent.Todos {
			box := "[ ]"
			if t.Done {
				box = "[x]"
			}
			sys.WriteString(fmt.Sprintf("- %s %s\n", box, t.Text))
		}
	}

	if agent.ProjectRoot != "" {
		sys.WriteString("\n\n## Project context\n")
		sys.WriteString(fmt.Sprintf("Your project root is %s.\n\n", agent.ProjectRoot))
		sys.WriteString(toolVocabularyDocs)
	}

	messages := make([]model.Message, 0, len(agent.History)+2)
	messages = append(messages, model.Message{Role: core.RoleSystem, Content: sys.String()})

	history := agent.History
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	for _, entry := range history {
		messages = append(messages, model.Message{Role: entry.Role, Content: entry.Content})
	}

	messages = append(messages, model.Message{Role: core.RoleUser, Content: userMessage})
	return messages
}
