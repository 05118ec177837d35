package effects

import "testing"

func TestGaussianBlurKeepsBorder(t *testing.T) {
	in := patternField(12, 8)
	out := GaussianBlur(in)

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			if x != 0 && y != 0 && x != in.Width-1 && y != in.Height-1 {
				continue
			}
			i := y*in.Width + x
			if out.Values[i] != in.Values[i] {
				t.Fatalf("border pixel (%d,%d) changed: %d -> %d", x, y, in.Values[i], out.Values[i])
			}
		}
	}
}

func TestGaussianBlurInterior(t *testing.T) {
	in := patternField(5, 5)
	out := GaussianBlur(in)

	sum := 0
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			sum += int(in.Values[(2+j)*5+2+i]) * BlurKernel[j+1][i+1]
		}
	}
	if want := uint8(sum / 16); out.Values[2*5+2] != want {
		t.Fatalf("expected blurred center %d, got %d", want, out.Values[2*5+2])
	}

	flat := NewField(6, 6)
	for i := range flat.Values {
		flat.Values[i] = 100
	}
	for i, v := range GaussianBlur(flat).Values {
		if v != 100 {
			t.Fatalf("flat field changed at %d: got %d", i, v)
		}
	}
}

func TestGaussianBlurDoesNotMutateInput(t *testing.T) {
	in := patternField(9, 9)
	before := in.Clone()
	GaussianBlur(in)
	for i := range in.Values {
		if in.Values[i] != before.Values[i] {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestConvolveClamps(t *testing.T) {
	f := NewField(3, 3)
	for i := range f.Values {
		f.Values[i] = 200
	}
	sharpen := Kernel{{0, -1, 0}, {-1, 9, -1}, {0, -1, 0}}
	if got := Convolve(f, sharpen, 1).Values[4]; got != 255 {
		t.Fatalf("expected clamp to 255, got %d", got)
	}
	negative := Kernel{{0, 0, 0}, {0, -1, 0}, {0, 0, 0}}
	if got := Convolve(f, negative, 1).Values[4]; got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
}

func TestConvolveRawSobelOnStep(t *testing.T) {
	f := Luminance(stepBuffer(6, 3, 3))
	gx := ConvolveRaw(f, SobelX)
	gy := ConvolveRaw(f, SobelY)

	cases := map[int]int32{1: 0, 2: 1020, 3: 1020, 4: 0}
	for x, want := range cases {
		if got := gx[6+x]; got != want {
			t.Fatalf("gx at x=%d: expected %d, got %d", x, want, got)
		}
		if got := gy[6+x]; got != 0 {
			t.Fatalf("gy at x=%d: expected 0, got %d", x, got)
		}
	}
	if gx[0] != 0 || gx[5] != 0 {
		t.Fatal("expected border entries to stay zero")
	}
}

func TestConvolveSmallFieldIsCopy(t *testing.T) {
	f := patternField(2, 7)
	out := Convolve(f, BlurKernel, BlurDivisor)
	for i := range f.Values {
		if out.Values[i] != f.Values[i] {
			t.Fatalf("expected copy for field without interior, differs at %d", i)
		}
	}
}
