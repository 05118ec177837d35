package effects

// Kernel is a 3x3 integer convolution kernel indexed [row][column].
type Kernel [3][3]int

var (
	// BlurKernel is the 3x3 binomial approximation of a Gaussian; its
	// weights sum to BlurDivisor.
	BlurKernel = Kernel{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}
	SobelX = Kernel{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	SobelY = Kernel{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

const BlurDivisor = 16

// apply returns the raw weighted sum of the neighbourhood around the
// interior pixel (x, y).
func (k *Kernel) apply(f *Field, x, y int) int {
	w := f.Width
	sum := 0
	for j := -1; j <= 1; j++ {
		row := f.Values[(y+j)*w+x-1 : (y+j)*w+x+2]
		kr := &k[j+1]
		sum += int(row[0])*kr[0] + int(row[1])*kr[1] + int(row[2])*kr[2]
	}
	return sum
}

// Convolve applies k to every interior pixel of f, divides by divisor
// (truncating toward zero) and clamps to [0,255]. Border pixels are copied
// from f unchanged. A divisor of 0 is treated as 1.
func Convolve(f *Field, k Kernel, divisor int) *Field {
	if divisor == 0 {
		divisor = 1
	}
	out := f.Clone()
	if f.Width < 3 || f.Height < 3 {
		return out
	}
	for y := 1; y < f.Height-1; y++ {
		for x := 1; x < f.Width-1; x++ {
			out.Values[y*f.Width+x] = clampByte(k.apply(f, x, y) / divisor)
		}
	}
	return out
}

// ConvolveRaw applies k to every interior pixel of f without normalization
// or clamping. Border entries are zero.
func ConvolveRaw(f *Field, k Kernel) []int32 {
	out := make([]int32, len(f.Values))
	if f.Width < 3 || f.Height < 3 {
		return out
	}
	for y := 1; y < f.Height-1; y++ {
		for x := 1; x < f.Width-1; x++ {
			out[y*f.Width+x] = int32(k.apply(f, x, y))
		}
	}
	return out
}

// GaussianBlur smooths the interior of f with BlurKernel. The 1-pixel border
// keeps its input values so blurred images do not grow dark frames.
func GaussianBlur(f *Field) *Field {
	return Convolve(f, BlurKernel, BlurDivisor)
}
