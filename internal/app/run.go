package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/layoutgrid/internal/ctxlog"
	"github.com/vk/layoutgrid/internal/hostlist"
	"github.com/vk/layoutgrid/internal/manager"
	"github.com/vk/layoutgrid/internal/value"
)

// dispatch maps one CLI command onto the manager API.
func (a *App) dispatch(ctx context.Context, command string, args []string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Dispatching command.", "command", command, "args", args)

	switch command {
	case "dump":
		return a.mgr.Dump(a.outW)
	case "get":
		return a.cmdGet(args)
	case "set":
		return a.cmdSet(args)
	case "getfrom":
		return a.cmdGetFrom(args)
	case "propagate":
		return a.cmdPropagate(args)
	case "update":
		return a.cmdUpdate(args)
	case "list":
		return a.cmdList(args)
	}
	return fmt.Errorf("unknown command '%s'", command)
}

// cmdGet: get <layout> <key> <host-expr>
func (a *App) cmdGet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: get <layout> <key> <host-expr>")
	}
	names, err := hostlist.Expand(args[2])
	if err != nil {
		return err
	}
	vals, err := a.mgr.GetValues(args[0], names, args[1])
	if err != nil {
		return err
	}
	return a.printValues(names, vals)
}

// cmdSet: set <layout> <key> <host-expr> <set|sum> <value>
func (a *App) cmdSet(args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: set <layout> <key> <host-expr> <set|sum> <value>")
	}
	op, err := parseOperation(args[3])
	if err != nil {
		return err
	}
	names, err := hostlist.Expand(args[2])
	if err != nil {
		return err
	}
	v, err := a.parseTypedValue(args[0], args[1], args[4])
	if err != nil {
		return err
	}
	return a.mgr.SetValues(args[0], names, args[1], op, v)
}

// cmdGetFrom: getfrom <layout> <key> <host-expr> <up|down> <sum|mean|set>
func (a *App) cmdGetFrom(args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: getfrom <layout> <key> <host-expr> <up|down> <sum|mean|set>")
	}
	dir, err := parseDirection(args[3])
	if err != nil {
		return err
	}
	cons, err := parseConsolidation(args[4])
	if err != nil {
		return err
	}
	names, err := hostlist.Expand(args[2])
	if err != nil {
		return err
	}
	vals, err := a.mgr.GetUpdatedValue(args[0], names, args[1], dir, cons)
	if err != nil {
		return err
	}
	return a.printValues(names, vals)
}

// cmdPropagate: propagate <layout> <key> <host-expr> <set|sum> <up|down> <sum|mean|set> <value>
func (a *App) cmdPropagate(args []string) error {
	if len(args) != 7 {
		return fmt.Errorf(
			"usage: propagate <layout> <key> <host-expr> <set|sum> <up|down> <sum|mean|set> <value>")
	}
	op, err := parseOperation(args[3])
	if err != nil {
		return err
	}
	dir, err := parseDirection(args[4])
	if err != nil {
		return err
	}
	cons, err := parseConsolidation(args[5])
	if err != nil {
		return err
	}
	names, err := hostlist.Expand(args[2])
	if err != nil {
		return err
	}
	l := a.mgr.GetLayout(args[0])
	if l == nil {
		return fmt.Errorf("unknown layout type '%s'", args[0])
	}
	v, err := a.parseTypedValue(args[0], args[1], args[6])
	if err != nil {
		return err
	}
	return a.mgr.PropagateValue(args[0], names, args[1], op, dir, cons, v)
}

// cmdUpdate: update <layout> <host-expr> <key[+]=value[#...]>
func (a *App) cmdUpdate(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: update <layout> <host-expr> <key[+]=value[#...]>")
	}
	return a.mgr.AdminUpdate(args[0], args[1], args[2])
}

// cmdList: list <layout> [entity-type] [key]
func (a *App) cmdList(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("usage: list <layout> [entity-type] [key]")
	}
	entityType, key := "", ""
	if len(args) > 1 {
		entityType = args[1]
	}
	if len(args) > 2 {
		key = args[2]
	}
	names, err := a.mgr.ListEntities(args[0], entityType, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.outW, strings.Join(names, "\n"))
	return nil
}

func (a *App) printValues(names []string, vals []*value.Value) error {
	for i, name := range names {
		fmt.Fprintf(a.outW, "%s: %s\n", name, vals[i].Dump(nil))
	}
	return nil
}

// parseTypedValue resolves the key's declared type and parses the textual
// value against it.
func (a *App) parseTypedValue(layoutType, key, text string) (*value.Value, error) {
	def, ok := a.mgr.ResolveKey(layoutType, key)
	if !ok {
		return nil, fmt.Errorf("unknown key '%s' for layout '%s'", key, layoutType)
	}
	return value.Parse(def.Type, text)
}

func parseDirection(s string) (int, error) {
	switch strings.ToLower(s) {
	case "up":
		return manager.DirectionUp, nil
	case "down":
		return manager.DirectionDown, nil
	}
	return 0, fmt.Errorf("invalid direction '%s': must be 'up' or 'down'", s)
}

func parseOperation(s string) (int, error) {
	switch strings.ToLower(s) {
	case "set":
		return manager.OperationSet, nil
	case "sum":
		return manager.OperationSum, nil
	}
	return 0, fmt.Errorf("invalid operation '%s': must be 'set' or 'sum'", s)
}

func parseConsolidation(s string) (int, error) {
	switch strings.ToLower(s) {
	case "sum":
		return manager.ConsolidationSum, nil
	case "mean":
		return manager.ConsolidationMean, nil
	case "set":
		return manager.ConsolidationSet, nil
	}
	return 0, fmt.Errorf("invalid consolidation '%s': must be 'sum', 'mean' or 'set'", s)
}
