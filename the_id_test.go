package ussh

import "testing"

func TestTagBuilder(t *testing.T) {
	b := NewTagBuilder()

	seen := make(map[string]bool)

	for i := 0; i < 100000; i++ {
		tag := b.NewTag()
		if seen[tag] {
			t.Fatalf("%d: duplicate tag (%s) generated!", i, tag)
		}
		seen[tag] = true
	}
}
