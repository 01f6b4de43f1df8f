package mapper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   uint
	Name string
}

type view struct {
	Label string
}

func TestMapSlice(t *testing.T) {
	double := func(i int) int { return i * 2 }

	assert.Nil(t, MapSlice(nil, double))
	assert.Equal(t, []int{}, MapSlice([]int{}, double))
	assert.Equal(t, []int{2, 4, 6}, MapSlice([]int{1, 2, 3}, double))
}

func TestMapSlicePtrWithID(t *testing.T) {
	toView := func(r *row) (*view, error) {
		return &view{Label: r.Name}, nil
	}
	id := func(r *row) uint { return r.ID }

	t.Run("nil input returns nil", func(t *testing.T) {
		got, err := MapSlicePtrWithID(nil, toView, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("skips nil elements", func(t *testing.T) {
		in := []*row{{ID: 1, Name: "a"}, nil, {ID: 3, Name: "c"}}
		got, err := MapSlicePtrWithID(in, toView, id)
		require.NoError(t, err)
		assert.Equal(t, []*view{{Label: "a"}, {Label: "c"}}, got)
	})

	t.Run("skips nil outputs", func(t *testing.T) {
		dropEven := func(r *row) (*view, error) {
			if r.ID%2 == 0 {
				return nil, nil
			}
			return &view{Label: r.Name}, nil
		}
		in := []*row{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}
		got, err := MapSlicePtrWithID(in, dropEven, id)
		require.NoError(t, err)
		assert.Equal(t, []*view{{Label: "a"}, {Label: "c"}}, got)
	})

	t.Run("error carries the element ID", func(t *testing.T) {
		failOn := func(r *row) (*view, error) {
			if r.ID == 7 {
				return nil, errors.New("corrupt row")
			}
			return &view{Label: r.Name}, nil
		}
		in := []*row{{ID: 1, Name: "a"}, {ID: 7, Name: "bad"}}
		got, err := MapSlicePtrWithID(in, failOn, id)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.Contains(t, err.Error(), fmt.Sprintf("ID %v", uint(7)))
		assert.Contains(t, err.Error(), "corrupt row")
	})
}
