package entity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/tree"
	"github.com/vk/layoutgrid/internal/value"
)

func newStore(t *testing.T) (*entity.Store, *keydef.Registry) {
	t.Helper()
	reg := keydef.NewRegistry()
	return entity.NewStore(reg), reg
}

func TestStore_Add(t *testing.T) {
	s, _ := newStore(t)

	e, err := s.Add("node1", "node", nil)
	require.NoError(t, err)
	require.Equal(t, "node1", e.Name)
	require.Equal(t, "node", e.Type)
	require.Equal(t, 1, s.Len())

	t.Run("duplicate name is rejected", func(t *testing.T) {
		_, err := s.Add("node1", "node", nil)
		require.Error(t, err)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := s.Add("", "node", nil)
		require.Error(t, err)
	})
}

func TestStore_CreateOrGet(t *testing.T) {
	allowed := []string{"center", "rack"}

	t.Run("creates a new typed entity", func(t *testing.T) {
		s, _ := newStore(t)
		e, err := s.CreateOrGet("top", "center", allowed)
		require.NoError(t, err)
		require.Equal(t, "center", e.Type)
	})

	t.Run("new entity without a type is rejected", func(t *testing.T) {
		s, _ := newStore(t)
		_, err := s.CreateOrGet("top", "", allowed)
		require.Error(t, err)
	})

	t.Run("new entity with a disallowed type is rejected", func(t *testing.T) {
		s, _ := newStore(t)
		_, err := s.CreateOrGet("top", "switch", allowed)
		require.Error(t, err)
	})

	t.Run("repeat reference without type returns the existing entity", func(t *testing.T) {
		s, _ := newStore(t)
		e1, err := s.CreateOrGet("top", "center", allowed)
		require.NoError(t, err)
		e2, err := s.CreateOrGet("top", "", allowed)
		require.NoError(t, err)
		require.Same(t, e1, e2)
	})

	t.Run("repeat reference with matching type succeeds", func(t *testing.T) {
		s, _ := newStore(t)
		e1, _ := s.CreateOrGet("top", "center", allowed)
		e2, err := s.CreateOrGet("top", "center", allowed)
		require.NoError(t, err)
		require.Same(t, e1, e2)
	})

	t.Run("repeat reference with a conflicting type is rejected", func(t *testing.T) {
		s, _ := newStore(t)
		s.CreateOrGet("top", "center", allowed)
		_, err := s.CreateOrGet("top", "rack", allowed)
		require.Error(t, err)
	})
}

func TestStore_DataRoundTrip(t *testing.T) {
	s, reg := newStore(t)
	def := reg.Register("power", "MaxWatts", keydef.TypeUint32, nil, nil)
	e, _ := s.Add("node1", "node", nil)

	require.False(t, e.HasData(def.Key))
	s.SetData(e, def.Key, value.NewUint32(225))
	require.True(t, e.HasData(def.Key))

	v, ok := s.GetData(e, def.Key)
	require.True(t, ok)
	require.Equal(t, uint32(225), v.Uint32())

	t.Run("handle mutates the stored value in place", func(t *testing.T) {
		require.NoError(t, v.Add(value.NewUint32(25)))
		again, _ := s.GetData(e, def.Key)
		require.Equal(t, uint32(250), again.Uint32())
	})

	t.Run("delete removes the key", func(t *testing.T) {
		s.DeleteData(e, def.Key)
		require.False(t, e.HasData(def.Key))
	})
}

func TestStore_SetDataUndeclaredKeyPanics(t *testing.T) {
	s, _ := newStore(t)
	e, _ := s.Add("node1", "node", nil)
	require.Panics(t, func() {
		s.SetData(e, "power.neverdeclared", value.NewUint32(1))
	})
}

func TestStore_CustomDestroy(t *testing.T) {
	reg := keydef.NewRegistry()
	destroyed := 0
	def := reg.Register("unit", "Tags", keydef.TypeCustom,
		func(any) { destroyed++ }, nil)
	s := entity.NewStore(reg)
	e, _ := s.Add("node1", "node", nil)

	s.SetData(e, def.Key, value.NewCustom("a"))
	s.SetData(e, def.Key, value.NewCustom("b"))
	require.Equal(t, 1, destroyed, "replacing must destroy the old payload")

	s.DeleteData(e, def.Key)
	require.Equal(t, 2, destroyed, "delete must destroy the stored payload")
}

func TestEntity_NodeRefs(t *testing.T) {
	s, _ := newStore(t)
	e, _ := s.Add("node1", "node", nil)

	_, ok := e.NodeRef("power")
	require.False(t, ok)

	e.AddNodeRef("base", tree.NodeID(1))
	e.AddNodeRef("power", tree.NodeID(3))

	id, ok := e.NodeRef("power")
	require.True(t, ok)
	require.Equal(t, tree.NodeID(3), id)

	require.Len(t, e.NodeRefs(), 2)

	e.ClearNodeRefs()
	require.Empty(t, e.NodeRefs())
}

func TestStore_Range(t *testing.T) {
	s, _ := newStore(t)
	s.Add("a", "node", nil)
	s.Add("b", "node", nil)
	s.Add("c", "node", nil)

	seen := 0
	s.Range(func(*entity.Entity) bool {
		seen++
		return seen < 2
	})
	require.Equal(t, 2, seen, "range must stop when fn returns false")
}
