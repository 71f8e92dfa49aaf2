package router

import (
	"sort"

	tele "gopkg.in/telebot.v4"
)

// CommandGroup describes every handler registered for one command.
type CommandGroup struct {
	Command     string
	Description string
	Hidden      bool
	Handlers    []string
}

type commandGroup[S, A, D any] struct {
	CommandGroup
	handlers []*handler[S, A, D]
}

// groupCommands stably sorts command handlers by command and folds each run into one group.
// Handlers inside a group keep registration order.
func groupCommands[S, A, D any](hs []*handler[S, A, D]) []commandGroup[S, A, D] {
	sorted := make([]*handler[S, A, D], 0, len(hs))
	for _, h := range hs {
		if h.command != "" {
			sorted = append(sorted, h)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].command < sorted[j].command })

	var groups []commandGroup[S, A, D]
	for i := 0; i < len(sorted); {
		j := i
		g := commandGroup[S, A, D]{CommandGroup: CommandGroup{Command: sorted[i].command}}
		for ; j < len(sorted) && sorted[j].command == sorted[i].command; j++ {
			h := sorted[j]
			if g.Description == "" {
				g.Description = h.description
			}
			if h.hidden {
				g.Hidden = true
			}
			g.Handlers = append(g.Handlers, h.name)
			g.handlers = append(g.handlers, h)
		}
		groups = append(groups, g)
		i = j
	}
	return groups
}

// Commands lists the command groups in command order.
func (r *Router[S, A, D]) Commands() []CommandGroup {
	out := make([]CommandGroup, len(r.commands))
	copy(out, r.commands)
	return out
}

// BotCommands returns the visible, described commands for the bot command menu.
func (r *Router[S, A, D]) BotCommands() []tele.Command {
	var list []tele.Command
	for _, g := range r.commands {
		if g.Hidden || g.Description == "" {
			continue
		}
		list = append(list, tele.Command{Text: g.Command, Description: g.Description})
	}
	return list
}
