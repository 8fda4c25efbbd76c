package fingerprint

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeterministic(t *testing.T) {
	input := map[string]any{
		"file_path": "/tmp/proj/x",
		"content":   "hello world",
		"flags":     []any{"a", "b"},
		"opts":      map[string]any{"force": true, "depth": float64(3)},
	}

	first := Compute("Write", input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute("Write", input))
	}
}

func TestComputeKeyOrderInsensitive(t *testing.T) {
	// Maps iterate in random order; hashing repeatedly over a wide map
	// exercises the sorted-key canonicalization.
	input := map[string]any{}
	for i := 0; i < 50; i++ {
		input[fmt.Sprintf("key_%02d", i)] = float64(i)
	}

	first := Compute("Bash", input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Compute("Bash", input))
	}
}

func TestComputeToolNameMatters(t *testing.T) {
	input := map[string]any{"file_path": "/tmp/x"}
	assert.NotEqual(t, Compute("Write", input), Compute("Edit", input))
}

func TestComputeNoDelimiterConfusion(t *testing.T) {
	// The separator between name and input must prevent ("ab", c...) from
	// colliding with ("a", bc...).
	assert.NotEqual(t,
		Compute("Writex", map[string]any{}),
		Compute("Write", map[string]any{"x": nil}),
	)
}

func TestComputeSensitivity(t *testing.T) {
	// At least 100 distinct inputs, zero collisions.
	seen := make(map[string]string)

	record := func(name string, input map[string]any) {
		t.Helper()
		key := Compute(name, input)
		if prior, ok := seen[key]; ok {
			t.Fatalf("collision between %q and %s/%v", prior, name, input)
		}
		seen[key] = fmt.Sprintf("%s/%v", name, input)
	}

	for i := 0; i < 40; i++ {
		record("Bash", map[string]any{"command": fmt.Sprintf("ls -la /dir/%d", i)})
	}
	for i := 0; i < 40; i++ {
		record("Write", map[string]any{
			"file_path": fmt.Sprintf("/tmp/file_%d.txt", i),
			"content":   "same content",
		})
	}
	for i := 0; i < 20; i++ {
		record("Edit", map[string]any{
			"file_path":  "/tmp/file.txt",
			"old_string": "before",
			"new_string": fmt.Sprintf("after %d", i),
		})
	}
	// Structurally tricky pairs.
	record("T", map[string]any{"a": "1"})
	record("T", map[string]any{"a": float64(1)})
	record("T", map[string]any{"a": nil})
	record("T", map[string]any{"a": []any{}})
	record("T", map[string]any{"a": map[string]any{}})
	record("T", map[string]any{"a": true})
	record("T", map[string]any{"a": false})
	record("T", map[string]any{})

	assert.GreaterOrEqual(t, len(seen), 100)
}

func TestComputeNestedDifferences(t *testing.T) {
	base := map[string]any{
		"opts": map[string]any{"depth": float64(1), "force": false},
	}
	changed := map[string]any{
		"opts": map[string]any{"depth": float64(1), "force": true},
	}
	assert.NotEqual(t, Compute("Tool", base), Compute("Tool", changed))
}
