package catalog

import (
	"errors"
	"fmt"

	"github.com/apdplat/authz/internal/rbac"
)

var (
	// ErrUnknownReference indicates a parent or owning module id that does not exist.
	ErrUnknownReference = errors.New("catalog: unknown reference")
	// ErrDuplicateID indicates two rows sharing the same id.
	ErrDuplicateID = errors.New("catalog: duplicate id")
)

// Graph is a linked, validated view of the module forest and its commands.
type Graph struct {
	modules     []*rbac.Module
	moduleByID  map[int64]*rbac.Module
	commands    []rbac.Command
	commandByID map[int64]int
}

// BuildGraph links module parents and command owners, preserving row order.
// It rejects duplicate ids, dangling references and parent cycles.
func BuildGraph(modules []ModuleRow, commands []CommandRow) (*Graph, error) {
	g := &Graph{
		modules:     make([]*rbac.Module, 0, len(modules)),
		moduleByID:  make(map[int64]*rbac.Module, len(modules)),
		commands:    make([]rbac.Command, 0, len(commands)),
		commandByID: make(map[int64]int, len(commands)),
	}
	for _, row := range modules {
		if _, ok := g.moduleByID[row.ID]; ok {
			return nil, fmt.Errorf("%w: module %d", ErrDuplicateID, row.ID)
		}
		m := &rbac.Module{ID: row.ID, Name: row.Name}
		g.moduleByID[row.ID] = m
		g.modules = append(g.modules, m)
	}
	for _, row := range modules {
		if row.ParentID == nil {
			continue
		}
		parent, ok := g.moduleByID[*row.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: module %d parent %d", ErrUnknownReference, row.ID, *row.ParentID)
		}
		g.moduleByID[row.ID].Parent = parent
	}
	for _, m := range g.modules {
		if _, err := rbac.AppendAncestry(nil, m); err != nil {
			return nil, err
		}
	}

	for _, row := range commands {
		if _, ok := g.commandByID[row.ID]; ok {
			return nil, fmt.Errorf("%w: command %d", ErrDuplicateID, row.ID)
		}
		cmd := rbac.Command{ID: row.ID, Name: row.Name}
		if row.ModuleID != nil {
			m, ok := g.moduleByID[*row.ModuleID]
			if !ok {
				return nil, fmt.Errorf("%w: command %d module %d", ErrUnknownReference, row.ID, *row.ModuleID)
			}
			cmd.Module = m
		}
		g.commandByID[row.ID] = len(g.commands)
		g.commands = append(g.commands, cmd)
	}
	return g, nil
}

// Modules returns every module in listing order.
func (g *Graph) Modules() []*rbac.Module {
	out := make([]*rbac.Module, len(g.modules))
	copy(out, g.modules)
	return out
}

// Commands returns every command in listing order.
func (g *Graph) Commands() []rbac.Command {
	out := make([]rbac.Command, len(g.commands))
	copy(out, g.commands)
	return out
}

// Module looks up a module by id.
func (g *Graph) Module(id int64) (*rbac.Module, bool) {
	m, ok := g.moduleByID[id]
	return m, ok
}

// Command looks up a command by id.
func (g *Graph) Command(id int64) (rbac.Command, bool) {
	idx, ok := g.commandByID[id]
	if !ok {
		return rbac.Command{}, false
	}
	return g.commands[idx], true
}

// Role links a role row to graph commands. Command ids missing from the
// graph are returned separately and left out of the role.
func (g *Graph) Role(row RoleRow) (rbac.Role, []int64) {
	role := rbac.Role{
		ID:           row.ID,
		Name:         row.Name,
		SuperManager: row.SuperManager,
		Authorities:  append([]string(nil), row.Authorities...),
		Commands:     make([]rbac.Command, 0, len(row.CommandIDs)),
	}
	var missing []int64
	for _, id := range row.CommandIDs {
		cmd, ok := g.Command(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		role.Commands = append(role.Commands, cmd)
	}
	return role, missing
}
