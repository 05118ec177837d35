package effects

import "testing"

func TestBackgroundMask(t *testing.T) {
	buf := solidBuffer(4, 4, RGB{30, 60, 90})
	buf.SetOpaque(5, RGB{30, 60, 100})
	buf.SetOpaque(10, RGB{200, 10, 10})

	mask := BackgroundMask(buf, 20)
	for i, bg := range mask {
		want := i != 10
		if bg != want {
			t.Fatalf("pixel %d: expected background=%v", i, want)
		}
	}

	// Distance must be strictly below the threshold.
	for i, bg := range BackgroundMask(buf, 10) {
		if want := i != 10 && i != 5; bg != want {
			t.Fatalf("pixel %d at threshold 10: expected background=%v", i, want)
		}
	}

	for i, bg := range BackgroundMask(buf, 0) {
		if bg {
			t.Fatalf("pixel %d: expected no background at threshold 0", i)
		}
	}
}
