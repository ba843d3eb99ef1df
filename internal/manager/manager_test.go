package manager_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hclconf"
	"github.com/vk/layoutgrid/internal/inventory"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/manager"
	"github.com/vk/layoutgrid/internal/plugin"
	"github.com/vk/layoutgrid/internal/value"
)

// gridPlugin is a minimal tree-structured layout used by the tests: a data
// center enclosing racks enclosing inventory nodes, with one numeric and one
// textual key.
type gridPlugin struct{}

func (p *gridPlugin) Spec() *plugin.Spec {
	return &plugin.Spec{
		StructKind:  layout.KindTree,
		EntityTypes: []string{"center", "rack"},
		Keys: []plugin.KeySpec{
			{Key: "Watts", Type: keydef.TypeUint32},
			{Key: "Label", Type: keydef.TypeString},
		},
		AutoMerge: true,
	}
}

func (p *gridPlugin) ConfDone(*entity.Store, *layout.Layout, *hclconf.LayoutConfig) error {
	return nil
}

func (p *gridPlugin) EntityParsing(*entity.Store, *entity.Entity, map[string]cty.Value, *layout.Layout) error {
	return nil
}

const gridConfig = `
priority = 10
root     = "top"

entity "top" {
  type     = "center"
  enclosed = ["rack[1-2]"]
}

entity "rack1" {
  type     = "rack"
  enclosed = ["node[1-2]"]
}

entity "rack2" {
  type     = "rack"
  enclosed = ["node[3-4]"]
}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager builds an initialized, loaded manager over the grid layout:
//
//	top -> rack1 -> node1, node2
//	    -> rack2 -> node3, node4
//
// node5 exists in the inventory but participates in no plugin layout.
func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	m := newUnloadedManager(t, gridConfig)
	require.NoError(t, m.Init())
	require.NoError(t, m.LoadConfig())
	t.Cleanup(m.Fini)
	return m
}

func newUnloadedManager(t *testing.T, config string) *manager.Manager {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid.hcl"), []byte(config), 0o644))

	reg := plugin.NewRegistry()
	reg.Register("grid", func() plugin.Plugin { return &gridPlugin{} })

	return manager.New(manager.Config{
		Layouts: "grid/default",
		ConfDir: dir,
		Inventory: inventory.NewStatic([]inventory.Node{
			{Name: "node1", State: "up"},
			{Name: "node2", State: "up"},
			{Name: "node3", State: "up"},
			{Name: "node4", State: "up"},
			{Name: "node5", State: "up"},
		}),
		Plugins: reg,
		Logger:  quietLogger(),
	})
}

func setWatts(t *testing.T, m *manager.Manager, name string, watts uint32) {
	t.Helper()
	require.NoError(t, m.SetValues("grid", []string{name}, "Watts",
		manager.OperationSet, value.NewUint32(watts)))
}

func getWatts(t *testing.T, m *manager.Manager, name string) uint32 {
	t.Helper()
	vals, err := m.GetValues("grid", []string{name}, "Watts")
	require.NoError(t, err)
	require.Len(t, vals, 1)
	return vals[0].Uint32()
}

func TestManager_InitIdempotent(t *testing.T) {
	m := newUnloadedManager(t, gridConfig)
	require.NoError(t, m.Init())
	require.NoError(t, m.Init())
}

func TestManager_InitUnknownLayout(t *testing.T) {
	m := manager.New(manager.Config{
		Layouts: "nosuchlayout",
		Plugins: plugin.NewRegistry(),
		Logger:  quietLogger(),
	})
	require.Error(t, m.Init())
}

func TestManager_LoadConfig_Structure(t *testing.T) {
	m := newTestManager(t)

	t.Run("plugin layout is loaded with its priority", func(t *testing.T) {
		l := m.GetLayout("grid")
		require.NotNil(t, l)
		require.Equal(t, "default", l.Name)
		require.Equal(t, uint32(10), l.Priority)
		require.Equal(t, layout.KindTree, l.Kind)
	})

	t.Run("base layout holds every inventory node", func(t *testing.T) {
		require.NotNil(t, m.GetLayout(manager.BaseLayoutType))
		names, err := m.ListEntities(manager.BaseLayoutType, "", "")
		require.NoError(t, err)
		require.Equal(t, []string{"node1", "node2", "node3", "node4", "node5"}, names)
	})

	t.Run("plugin tree lists entities in preorder", func(t *testing.T) {
		names, err := m.ListEntities("grid", "", "")
		require.NoError(t, err)
		require.Equal(t,
			[]string{"top", "rack1", "node1", "node2", "rack2", "node3", "node4"},
			names)
	})

	t.Run("entity type filter", func(t *testing.T) {
		names, err := m.ListEntities("grid", "rack", "")
		require.NoError(t, err)
		require.Equal(t, []string{"rack1", "rack2"}, names)
	})

	t.Run("inventory nodes kept their node type", func(t *testing.T) {
		e := m.GetEntity("node1")
		require.NotNil(t, e)
		require.Equal(t, "node", e.Type)
	})

	t.Run("reload after success is a no-op", func(t *testing.T) {
		require.NoError(t, m.LoadConfig())
		names, err := m.ListEntities("grid", "", "")
		require.NoError(t, err)
		require.Len(t, names, 7)
	})
}

func TestManager_LoadConfig_MissingRoot(t *testing.T) {
	m := newUnloadedManager(t, `
entity "top" {
  type = "center"
}
`)
	require.NoError(t, m.Init())
	require.Error(t, m.LoadConfig())
}

func TestManager_LoadConfig_NoValidEntity(t *testing.T) {
	// the only declared entity carries a type outside the plugin's set, so
	// stage 1 skips it and the layout ends up empty
	m := newUnloadedManager(t, `
root = "top"

entity "top" {
  type = "warehouse"
}
`)
	require.NoError(t, m.Init())
	require.Error(t, m.LoadConfig())
}

func TestManager_LoadConfig_UnknownEnclosedIsSkipped(t *testing.T) {
	m := newUnloadedManager(t, `
root = "top"

entity "top" {
  type     = "center"
  enclosed = ["node1", "ghost99"]
}
`)
	require.NoError(t, m.Init())
	require.NoError(t, m.LoadConfig())
	names, err := m.ListEntities("grid", "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"top", "node1"}, names)
}

func TestManager_AutoMergeOptions(t *testing.T) {
	m := newUnloadedManager(t, `
root = "top"

entity "top" {
  type     = "center"
  enclosed = ["node[1-2]"]
  Watts    = 5000
  Label    = "main"
}
`)
	require.NoError(t, m.Init())
	require.NoError(t, m.LoadConfig())

	require.Equal(t, uint32(5000), getWatts(t, m, "top"))
	vals, err := m.GetValues("grid", []string{"top"}, "Label")
	require.NoError(t, err)
	require.Equal(t, "main", vals[0].String())
}

func TestManager_GetSetValues(t *testing.T) {
	m := newTestManager(t)

	setWatts(t, m, "node1", 100)
	require.Equal(t, uint32(100), getWatts(t, m, "node1"))

	t.Run("unset key is an error", func(t *testing.T) {
		_, err := m.GetValues("grid", []string{"node2"}, "Watts")
		require.Error(t, err)
	})

	t.Run("sum operation accumulates", func(t *testing.T) {
		require.NoError(t, m.SetValues("grid", []string{"node1"}, "Watts",
			manager.OperationSum, value.NewUint32(25)))
		require.Equal(t, uint32(125), getWatts(t, m, "node1"))
	})

	t.Run("returned values are copies", func(t *testing.T) {
		vals, err := m.GetValues("grid", []string{"node1"}, "Watts")
		require.NoError(t, err)
		require.NoError(t, vals[0].Add(value.NewUint32(1000)))
		require.Equal(t, uint32(125), getWatts(t, m, "node1"))
	})

	t.Run("value type must match the key type", func(t *testing.T) {
		err := m.SetValues("grid", []string{"node1"}, "Watts",
			manager.OperationSet, value.NewLong(1))
		require.Error(t, err)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := m.GetValues("grid", []string{"ghost"}, "Watts")
		require.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := m.GetValues("grid", []string{"node1"}, "Bogus")
		require.Error(t, err)
	})

	t.Run("unknown layout", func(t *testing.T) {
		_, err := m.GetValues("nope", []string{"node1"}, "Watts")
		require.Error(t, err)
	})
}

func TestManager_GetValuesSaveAndHandles(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 50)

	vals, handles, err := m.GetValuesSave("grid", []string{"node1"}, "Watts")
	require.NoError(t, err)
	require.Equal(t, uint32(50), vals[0].Uint32())
	require.Len(t, handles, 1)
	require.Equal(t, "node1", handles[0].Name)

	require.NoError(t, m.SetValuesEntities("grid", handles, "Watts",
		manager.OperationSet, value.NewUint32(75)))
	require.Equal(t, uint32(75), getWatts(t, m, "node1"))
}

func TestManager_GetValuesMulti(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 100)
	require.NoError(t, m.SetValues("grid", []string{"node1"}, "Label",
		manager.OperationSet, value.NewString("compute")))

	vals, err := m.GetValuesMulti("grid", "node1", []string{"Watts", "Label"})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	require.Equal(t, uint32(100), vals[0].Uint32())
	require.Equal(t, "compute", vals[1].String())
}

func TestManager_ConsolidateDownSum(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 1)
	setWatts(t, m, "node2", 2)
	setWatts(t, m, "node3", 3)
	setWatts(t, m, "node4", 4)

	vals, err := m.GetUpdatedValue("grid", []string{"top"}, "Watts",
		manager.DirectionDown, manager.ConsolidationSum)
	require.NoError(t, err)
	require.Equal(t, uint32(10), vals[0].Uint32())

	// intermediate racks were materialized on the way down
	require.Equal(t, uint32(3), getWatts(t, m, "rack1"))
	require.Equal(t, uint32(7), getWatts(t, m, "rack2"))
}

func TestManager_ConsolidateDownMean(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 2)
	setWatts(t, m, "node2", 4)
	setWatts(t, m, "node3", 6)
	setWatts(t, m, "node4", 8)

	vals, err := m.GetUpdatedValue("grid", []string{"top"}, "Watts",
		manager.DirectionDown, manager.ConsolidationMean)
	require.NoError(t, err)
	// racks resolve to 3 and 7, the center to their truncated mean
	require.Equal(t, uint32(5), vals[0].Uint32())
	require.Equal(t, uint32(3), getWatts(t, m, "rack1"))
	require.Equal(t, uint32(7), getWatts(t, m, "rack2"))
}

func TestManager_ConsolidateDownMeanTruncates(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 1)
	setWatts(t, m, "node2", 2)

	vals, err := m.GetUpdatedValue("grid", []string{"rack1"}, "Watts",
		manager.DirectionDown, manager.ConsolidationMean)
	require.NoError(t, err)
	require.Equal(t, uint32(1), vals[0].Uint32())
}

func TestManager_ConsolidateUpSet(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "top", 500)

	t.Run("value cascades down the ancestor chain", func(t *testing.T) {
		vals, err := m.GetUpdatedValue("grid", []string{"node1"}, "Watts",
			manager.DirectionUp, manager.ConsolidationSet)
		require.NoError(t, err)
		require.Equal(t, uint32(500), vals[0].Uint32())
		// the intermediate rack inherited the value while resolving
		require.Equal(t, uint32(500), getWatts(t, m, "rack1"))
	})

	t.Run("nearest valued ancestor wins", func(t *testing.T) {
		setWatts(t, m, "rack2", 100)
		vals, err := m.GetUpdatedValue("grid", []string{"node3"}, "Watts",
			manager.DirectionUp, manager.ConsolidationSet)
		require.NoError(t, err)
		require.Equal(t, uint32(100), vals[0].Uint32())
	})

	t.Run("target's own value is overwritten by the parent's", func(t *testing.T) {
		setWatts(t, m, "node1", 7)
		vals, err := m.GetUpdatedValue("grid", []string{"node1"}, "Watts",
			manager.DirectionUp, manager.ConsolidationSet)
		require.NoError(t, err)
		require.Equal(t, uint32(500), vals[0].Uint32())
	})
}

func TestManager_UpdateValueFrom(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "top", 300)

	require.NoError(t, m.UpdateValueFrom("grid", []string{"node2"}, "Watts",
		manager.DirectionUp, manager.ConsolidationSet))
	require.Equal(t, uint32(300), getWatts(t, m, "node2"))
}

// GET with direction UP supports only the SET consolidation; other
// combinations log and leave every entity untouched.
func TestManager_UnsupportedGetCombination(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "top", 500)

	vals, err := m.GetUpdatedValue("grid", []string{"node1"}, "Watts",
		manager.DirectionUp, manager.ConsolidationSum)
	require.NoError(t, err, "unsupported combinations are not failures")
	require.Equal(t, uint32(0), vals[0].Uint32(), "a zero is reported")

	_, err = m.GetValues("grid", []string{"node1"}, "Watts")
	require.Error(t, err, "no value may be stored by the no-op branch")
}

func TestManager_PropagateUpSum(t *testing.T) {
	m := newTestManager(t)

	err := m.PropagateValue("grid", []string{"node1", "node4"}, "Watts",
		manager.OperationSet, manager.DirectionUp, manager.ConsolidationSum,
		value.NewUint32(10))
	require.NoError(t, err)

	require.Equal(t, uint32(10), getWatts(t, m, "node1"))
	require.Equal(t, uint32(10), getWatts(t, m, "node4"))
	require.Equal(t, uint32(10), getWatts(t, m, "rack1"))
	require.Equal(t, uint32(10), getWatts(t, m, "rack2"))
	// the shared ancestor accumulates one contribution per target
	require.Equal(t, uint32(20), getWatts(t, m, "top"))
}

func TestManager_PropagateDownSet(t *testing.T) {
	m := newTestManager(t)

	err := m.PropagateValue("grid", []string{"rack1"}, "Watts",
		manager.OperationSet, manager.DirectionDown, manager.ConsolidationSet,
		value.NewUint32(50))
	require.NoError(t, err)

	require.Equal(t, uint32(50), getWatts(t, m, "rack1"))
	require.Equal(t, uint32(50), getWatts(t, m, "node1"))
	require.Equal(t, uint32(50), getWatts(t, m, "node2"))

	_, err = m.GetValues("grid", []string{"node3"}, "Watts")
	require.Error(t, err, "the sibling subtree must stay untouched")
}

// SET with direction DOWN supports only the SET consolidation; with an
// unsupported consolidation the named targets are still applied but nothing
// propagates.
func TestManager_UnsupportedSetCombination(t *testing.T) {
	m := newTestManager(t)

	err := m.PropagateValue("grid", []string{"rack1"}, "Watts",
		manager.OperationSet, manager.DirectionDown, manager.ConsolidationMean,
		value.NewUint32(50))
	require.NoError(t, err)
	require.Equal(t, uint32(50), getWatts(t, m, "rack1"))

	_, err = m.GetValues("grid", []string{"node1"}, "Watts")
	require.Error(t, err, "no propagation for the unsupported expansion")
}

func TestManager_DescriptorValidation(t *testing.T) {
	m := newTestManager(t)

	t.Run("string keys refuse numeric consolidation", func(t *testing.T) {
		err := m.UpdateValueFrom("grid", []string{"node1"}, "Label",
			manager.DirectionDown, manager.ConsolidationSum)
		require.Error(t, err)
	})

	t.Run("string keys refuse the sum operation", func(t *testing.T) {
		err := m.SetValues("grid", []string{"node1"}, "Label",
			manager.OperationSum, value.NewString("x"))
		require.Error(t, err)
	})

	t.Run("entity outside the layout tree refuses up/down", func(t *testing.T) {
		// node5 is inventory-only: present in base, absent from grid
		_, err := m.GetUpdatedValue("grid", []string{"node5"}, "Watts",
			manager.DirectionUp, manager.ConsolidationSet)
		require.Error(t, err)
	})

	t.Run("validation precedes any mutation", func(t *testing.T) {
		// node1 sits in the tree, node5 does not; nothing may change
		setWatts(t, m, "top", 500)
		_, err := m.GetUpdatedValue("grid", []string{"node1", "node5"}, "Watts",
			manager.DirectionUp, manager.ConsolidationSet)
		require.Error(t, err)
		_, err = m.GetValues("grid", []string{"node1"}, "Watts")
		require.Error(t, err)
	})
}

func TestManager_AdminUpdate(t *testing.T) {
	m := newTestManager(t)

	t.Run("multi-assignment over a hostlist", func(t *testing.T) {
		require.NoError(t, m.AdminUpdate("grid", "node[1-2]", "Watts=100#Label=compute"))
		require.Equal(t, uint32(100), getWatts(t, m, "node1"))
		require.Equal(t, uint32(100), getWatts(t, m, "node2"))
		vals, err := m.GetValues("grid", []string{"node2"}, "Label")
		require.NoError(t, err)
		require.Equal(t, "compute", vals[0].String())
	})

	t.Run("plus suffix accumulates", func(t *testing.T) {
		require.NoError(t, m.AdminUpdate("grid", "node1", "Watts+=50"))
		require.Equal(t, uint32(150), getWatts(t, m, "node1"))
	})

	t.Run("malformed assignment", func(t *testing.T) {
		require.Error(t, m.AdminUpdate("grid", "node1", "Watts"))
	})

	t.Run("unknown key rejects the whole batch before applying", func(t *testing.T) {
		require.Error(t, m.AdminUpdate("grid", "node1", "Watts=999#Bogus=1"))
		require.Equal(t, uint32(150), getWatts(t, m, "node1"))
	})

	t.Run("unparsable value rejects the whole batch", func(t *testing.T) {
		require.Error(t, m.AdminUpdate("grid", "node1", "Watts=abc"))
	})

	t.Run("sum on a non-numeric key rejects the whole batch", func(t *testing.T) {
		require.Error(t, m.AdminUpdate("grid", "node3", "Watts=77#Label+=x"))
		_, err := m.GetValues("grid", []string{"node3"}, "Watts")
		require.Error(t, err, "the leading assignment must not be applied")
	})

	t.Run("empty update string", func(t *testing.T) {
		require.Error(t, m.AdminUpdate("grid", "node1", ""))
	})
}

func TestManager_ListEntitiesKeyFilter(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 100)
	setWatts(t, m, "rack2", 200)

	names, err := m.ListEntities("grid", "", "Watts")
	require.NoError(t, err)
	require.Equal(t, []string{"node1", "rack2"}, names)

	t.Run("combined with entity type", func(t *testing.T) {
		names, err := m.ListEntities("grid", "rack", "Watts")
		require.NoError(t, err)
		require.Equal(t, []string{"rack2"}, names)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := m.ListEntities("grid", "", "Bogus")
		require.Error(t, err)
	})
}

func TestManager_ResolveEntities(t *testing.T) {
	m := newTestManager(t)

	handles, err := m.ResolveEntities([]string{"node1", "rack1"})
	require.NoError(t, err)
	require.Len(t, handles, 2)
	require.Equal(t, "node1", handles[0].Name)
	require.Equal(t, "rack1", handles[1].Name)

	_, err = m.ResolveEntities([]string{"ghost"})
	require.Error(t, err)
}

func TestManager_ResolveKey(t *testing.T) {
	m := newTestManager(t)

	def, ok := m.ResolveKey("grid", "watts")
	require.True(t, ok)
	require.Equal(t, keydef.TypeUint32, def.Type)

	_, ok = m.ResolveKey("grid", "bogus")
	require.False(t, ok)
}

func TestManager_Fini(t *testing.T) {
	m := newTestManager(t)
	m.Fini()

	_, err := m.GetValues("grid", []string{"node1"}, "Watts")
	require.Error(t, err)
	require.Nil(t, m.GetLayout("grid"))
	require.Nil(t, m.GetEntity("node1"))
}

func TestManager_FiniDetachesHandles(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 100)

	_, handles, err := m.GetValuesSave("grid", []string{"node1"}, "Watts")
	require.NoError(t, err)
	require.NotEmpty(t, handles[0].NodeRefs())

	m.Fini()
	require.Empty(t, handles[0].NodeRefs(),
		"handles must not reference trees that were torn down")
}

func TestManager_Dump(t *testing.T) {
	m := newTestManager(t)
	setWatts(t, m, "node1", 225)

	var sb strings.Builder
	require.NoError(t, m.Dump(&sb))
	out := sb.String()

	require.Contains(t, out, "-- entity node1 --")
	require.Contains(t, out, "data grid.watts (type: uint32): 225")
	require.Contains(t, out, "-- layout default --")
	require.Contains(t, out, "priority: 10")
	require.Contains(t, out, "(root)", "the base layout's synthetic root is printed")
}
