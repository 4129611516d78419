package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoutes() []Route {
	return []Route{
		{FileName: "vendors.csv", Table: "vendor_payments", TextFields: []string{"vendor_name", "memo"}},
		{FileName: "journal.csv", Table: "journal_entries", TextFields: []string{"description"}},
		{FileName: "vendors_2024.csv", Table: "vendor_payments", TextFields: []string{"vendor_name"}},
	}
}

func TestNewRoutingTable(t *testing.T) {
	t.Run("valid routes", func(t *testing.T) {
		rt, err := NewRoutingTable(testRoutes()...)
		require.NoError(t, err)
		assert.Equal(t, 3, rt.Len())
	})

	t.Run("empty table", func(t *testing.T) {
		rt, err := NewRoutingTable()
		require.NoError(t, err)
		assert.Equal(t, 0, rt.Len())
		assert.Empty(t, rt.Tables())
	})

	t.Run("duplicate file name", func(t *testing.T) {
		routes := append(testRoutes(), Route{FileName: "vendors.csv", Table: "other", TextFields: []string{"x"}})
		_, err := NewRoutingTable(routes...)
		assert.ErrorIs(t, err, ErrDuplicateRoute)
	})

	t.Run("invalid route", func(t *testing.T) {
		_, err := NewRoutingTable(Route{FileName: "vendors.csv", Table: "vendor_payments"})
		assert.ErrorIs(t, err, ErrNoTextFields)
	})
}

func TestRoutingTable_Lookup(t *testing.T) {
	rt, err := NewRoutingTable(testRoutes()...)
	require.NoError(t, err)

	route, ok := rt.Lookup("vendors.csv")
	require.True(t, ok)
	assert.Equal(t, "vendor_payments", route.Table)
	assert.Equal(t, []string{"vendor_name", "memo"}, route.TextFields)

	_, ok = rt.Lookup("unknown.csv")
	assert.False(t, ok)

	// Lookup is exact, no path handling
	_, ok = rt.Lookup("audit/vendors.csv")
	assert.False(t, ok)
}

func TestRoutingTable_Immutable(t *testing.T) {
	routes := testRoutes()
	rt, err := NewRoutingTable(routes...)
	require.NoError(t, err)

	// Mutating the caller's slice after construction has no effect
	routes[0].TextFields[0] = "changed"
	route, _ := rt.Lookup("vendors.csv")
	assert.Equal(t, "vendor_name", route.TextFields[0])

	// Mutating a returned route has no effect either
	route.TextFields[0] = "changed"
	again, _ := rt.Lookup("vendors.csv")
	assert.Equal(t, "vendor_name", again.TextFields[0])
}

func TestRoutingTable_Tables(t *testing.T) {
	rt, err := NewRoutingTable(testRoutes()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"vendor_payments", "journal_entries"}, rt.Tables())
}

func TestRoutingTable_Routes(t *testing.T) {
	rt, err := NewRoutingTable(testRoutes()...)
	require.NoError(t, err)

	routes := rt.Routes()
	require.Len(t, routes, 3)
	assert.Equal(t, "journal.csv", routes[0].FileName)
	assert.Equal(t, "vendors.csv", routes[1].FileName)
	assert.Equal(t, "vendors_2024.csv", routes[2].FileName)
}

func TestRoutingTable_RouteForTable(t *testing.T) {
	rt, err := NewRoutingTable(testRoutes()...)
	require.NoError(t, err)

	route, ok := rt.RouteForTable("vendor_payments")
	require.True(t, ok)
	assert.Equal(t, "vendors.csv", route.FileName)

	_, ok = rt.RouteForTable("missing")
	assert.False(t, ok)
}
