package engine

import "strings"

// Command is an inline user command, intercepted before input reaches the
// plan controller. One variant per recognized prefix keeps mode switching
// out of the control loop itself.
type Command interface {
	isCommand()
}

// ModeCommand switches the execution mode (/mode guarded|autonomous).
type ModeCommand struct {
	Mode ExecutionMode
}

// GoalCommand sets or replaces the current goal (/goal ...).
type GoalCommand struct {
	Goal string
}

// TemplateCommand runs a saved plan template (/plan path).
type TemplateCommand struct {
	Path string
}

// QuitCommand exits the session (/quit, exit, quit).
type QuitCommand struct{}

// UnknownCommand is a slash input with no recognized meaning, surfaced so
// the front-end can acknowledge it instead of treating it as a goal.
type UnknownCommand struct {
	Raw string
}

func (ModeCommand) isCommand()     {}
func (GoalCommand) isCommand()     {}
func (TemplateCommand) isCommand() {}
func (QuitCommand) isCommand()     {}
func (UnknownCommand) isCommand()  {}

// ParseCommand interprets one line of user input. The second return is
// false when the line is ordinary input (a goal), not a command.
func ParseCommand(input string) (Command, bool) {
	text := strings.TrimSpace(input)
	switch strings.ToLower(text) {
	case "exit", "quit":
		return QuitCommand{}, true
	}
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}

	parts := strings.Fields(text)
	switch strings.ToLower(parts[0]) {
	case "/mode":
		if len(parts) >= 2 {
			if mode, ok := ParseMode(strings.ToLower(parts[1])); ok {
				return ModeCommand{Mode: mode}, true
			}
		}
	case "/goal":
		if len(parts) >= 2 {
			return GoalCommand{Goal: strings.TrimSpace(strings.TrimPrefix(text, parts[0]))}, true
		}
	case "/plan":
		if len(parts) >= 2 {
			return TemplateCommand{Path: parts[1]}, true
		}
	case "/quit", "/exit":
		return QuitCommand{}, true
	}
	return UnknownCommand{Raw: text}, true
}
