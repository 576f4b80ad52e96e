package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevertRestoresValuesAndMaps(t *testing.T) {
	j := New()
	counter := 1
	m := map[string]int{"a": 1}

	snap := j.Snapshot()
	Set(j, &counter, 2)
	Put(j, m, "a", 10)
	Put(j, m, "b", 20)
	Delete(j, m, "a")
	Set(j, &counter, 3)

	assert.Equal(t, 3, counter)
	assert.Equal(t, map[string]int{"b": 20}, m)

	j.RevertToSnapshot(snap)
	assert.Equal(t, 1, counter)
	assert.Equal(t, map[string]int{"a": 1}, m)
	assert.Zero(t, j.Len())
}

func TestNestedSnapshots(t *testing.T) {
	j := New()
	type pair struct{ X, Y int }
	p := pair{1, 1}

	Touch(j, &p)
	p.X = 2
	inner := j.Snapshot()
	Touch(j, &p)
	p.Y = 5

	j.RevertToSnapshot(inner)
	assert.Equal(t, pair{2, 1}, p)

	j.Commit()
	j.RevertToSnapshot(0)
	assert.Equal(t, pair{2, 1}, p, "committed changes survive")
}
