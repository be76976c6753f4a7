package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
)

func TestWeakOverriddenByGlobal(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "foo", Value: 0x2000, Section: 0, Binding: objfmt.BindWeak}))
	require.NoError(t, r.Insert(1, "b.o", objfmt.Symbol{Name: "foo", Value: 0x3000, Section: 0, Binding: objfmt.BindGlobal}))

	def, ok := r.Lookup(2, "foo")
	require.True(t, ok)
	require.Equal(t, uint32(0x3000), def.Value)
}

func TestGlobalNotOverriddenByLaterWeak(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "foo", Value: 0x3000, Binding: objfmt.BindGlobal}))
	require.NoError(t, r.Insert(1, "b.o", objfmt.Symbol{Name: "foo", Value: 0x2000, Binding: objfmt.BindWeak}))

	def, ok := r.Lookup(2, "foo")
	require.True(t, ok)
	require.Equal(t, uint32(0x3000), def.Value)
}

func TestDuplicateGlobalIsMultiplyDefined(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "main", Binding: objfmt.BindGlobal}))
	err := r.Insert(1, "b.o", objfmt.Symbol{Name: "main", Binding: objfmt.BindGlobal})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.MultiplyDefined))
}

func TestDuplicateExportIsMultiplyDefined(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "api", Binding: objfmt.BindExport}))
	err := r.Insert(1, "b.o", objfmt.Symbol{Name: "api", Binding: objfmt.BindExport})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.MultiplyDefined))
}

func TestExportOverridesGlobal(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "api", Value: 1, Binding: objfmt.BindGlobal}))
	require.NoError(t, r.Insert(1, "b.o", objfmt.Symbol{Name: "api", Value: 2, Binding: objfmt.BindExport}))

	def, ok := r.Lookup(2, "api")
	require.True(t, ok)
	require.Equal(t, uint32(2), def.Value)
}

func TestLocalSymbolsNeverCollideAcrossObjects(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "tmp", Value: 1, Binding: objfmt.BindLocal}))
	require.NoError(t, r.Insert(1, "b.o", objfmt.Symbol{Name: "tmp", Value: 2, Binding: objfmt.BindLocal}))

	defA, ok := r.Lookup(0, "tmp")
	require.True(t, ok)
	require.Equal(t, uint32(1), defA.Value)

	defB, ok := r.Lookup(1, "tmp")
	require.True(t, ok)
	require.Equal(t, uint32(2), defB.Value)

	_, ok = r.Lookup(2, "tmp")
	require.False(t, ok)
}

func TestFinalizeReportsUnresolvedSymbols(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "missing", Section: objfmt.UndefinedSection, Binding: objfmt.BindGlobal}))

	err := r.Finalize()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.UnresolvedSymbol))
}

func TestFinalizeSucceedsWhenUndefinedLaterDefined(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "foo", Section: objfmt.UndefinedSection, Binding: objfmt.BindGlobal}))
	require.NoError(t, r.Insert(1, "b.o", objfmt.Symbol{Name: "foo", Value: 0x4000, Binding: objfmt.BindGlobal}))

	require.NoError(t, r.Finalize())
}

func TestDefinitionsPreserveInsertionOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "second", Binding: objfmt.BindGlobal}))
	require.NoError(t, r.Insert(0, "a.o", objfmt.Symbol{Name: "first", Binding: objfmt.BindGlobal}))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	require.Equal(t, "second", defs[0].Name)
	require.Equal(t, "first", defs[1].Name)
}
