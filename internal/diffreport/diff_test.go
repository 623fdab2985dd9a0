package diffreport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOpcodes(t *testing.T) {
	a := "import os\n# read config\nx = 1\nprint(x)\n"
	b := "import os\nx = 2\nprint(x)\nprint('done')\n"

	r := Build(a, b, "a.py", "b.py", DefaultOptions)

	require.NotEmpty(t, r.Opcodes)
	assert.Equal(t, 4, r.LinesA)
	assert.Equal(t, 4, r.LinesB)

	// Opcodes tile both texts without gaps.
	var nextA, nextB int
	for _, op := range r.Opcodes {
		assert.Equal(t, nextA, op.A1)
		assert.Equal(t, nextB, op.B1)
		nextA, nextB = op.A2, op.B2
	}
	assert.Equal(t, r.LinesA, nextA)
	assert.Equal(t, r.LinesB, nextB)

	assert.Equal(t, TagEqual, r.Opcodes[0].Tag)
	assert.False(t, r.Identical())
	assert.Equal(t, 2, r.Stats.Equal)
}

func TestBuildRowsCoverEveryLine(t *testing.T) {
	a := "one\ntwo\nthree\nfour"
	b := "zero\none\nTWO\nthree\nfive\nsix"
	r := Build(a, b, "a", "b", DefaultOptions)

	var left, right []int
	for _, row := range r.Rows {
		if !row.Left.Empty() {
			left = append(left, row.Left.Number)
		}
		if !row.Right.Empty() {
			right = append(right, row.Right.Number)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4}, left)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, right)
	assert.Equal(t, r.LinesA, r.Stats.Equal+r.Stats.Replaced+r.Stats.Deleted)
	assert.Equal(t, r.LinesB, r.Stats.Equal+r.Stats.Replaced+r.Stats.Inserted)
}

func TestReplaceRowsCarryIntraLineSegments(t *testing.T) {
	r := Build("total = price * qty\n", "total = cost * qty\n", "a", "b", DefaultOptions)

	require.Len(t, r.Rows, 1)
	row := r.Rows[0]
	assert.Equal(t, TagReplace, row.Tag)
	assert.Equal(t, "total = price * qty", row.Left.Text())
	assert.Equal(t, "total = cost * qty", row.Right.Text())

	var changedLeft, changedRight []string
	for _, s := range row.Left.Segments {
		if s.Changed {
			changedLeft = append(changedLeft, s.Text)
		}
	}
	for _, s := range row.Right.Segments {
		if s.Changed {
			changedRight = append(changedRight, s.Text)
		}
	}
	assert.Equal(t, "price", strings.Join(changedLeft, ""))
	assert.Equal(t, "cost", strings.Join(changedRight, ""))
}

func TestBuildIdenticalAndEmpty(t *testing.T) {
	same := Build("a\nb\n", "a\nb\n", "x", "y", DefaultOptions)
	assert.True(t, same.Identical())
	assert.Equal(t, 2, same.Stats.Equal)

	empty := Build("", "", "x", "y", DefaultOptions)
	assert.Empty(t, empty.Rows)
	assert.True(t, empty.Identical())

	oneSided := Build("", "a\nb", "x", "y", DefaultOptions)
	assert.Equal(t, 2, oneSided.Stats.Inserted)
}

func TestBuildIsDeterministic(t *testing.T) {
	a := "for i in range(3):\n\tprint(i)\n"
	b := "for j in range(3):\n    print(j)\n"

	first, err := Build(a, b, "a", "b", DefaultOptions).HTML()
	require.NoError(t, err)
	second, err := Build(a, b, "a", "b", DefaultOptions).HTML()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines("", 4))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n", 4))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb", 4))
	assert.Equal(t, []string{"    x", "ab  y"}, SplitLines("\tx\nab\ty", 4))
}

func TestExpandTabs(t *testing.T) {
	assert.Equal(t, "a   b", ExpandTabs("a\tb", 4))
	assert.Equal(t, "abcd    e", ExpandTabs("abcd\te", 4))
	assert.Equal(t, "a\tb", ExpandTabs("a\tb", 0))
}
