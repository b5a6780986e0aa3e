package toysm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextGetSet(t *testing.T) {
	c := NewContext(nil, nil, "inst1")

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("count", 1)
	v, ok := c.Get("count")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestContextNilParentDefaultsToBackground(t *testing.T) {
	c := NewContext(nil, nil, "inst1")
	require.NotNil(t, c.Context)
	require.NoError(t, c.Err())
}

func TestContextWithEventSharesDataNotEvent(t *testing.T) {
	parent := context.Background()
	c := NewContext(parent, nil, "inst1")
	c.Set("shared", "value")

	evt := NewEvent("tick", nil)
	c2 := c.withEvent(evt)

	require.Equal(t, evt, c2.Event)
	require.Nil(t, c.Event)

	v, ok := c2.Get("shared")
	require.True(t, ok)
	require.Equal(t, "value", v)

	c2.Set("added_later", true)
	v, ok = c.Get("added_later")
	require.True(t, ok, "data map must be shared, not copied, across withEvent")
	require.Equal(t, true, v)
}
