package indicator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// window walks x with a trailing window of w values and calls fn for every
// index whose window is full and holds no missing value.
func window(x []float64, w int, fn func(i int, win []float64)) {
	if w <= 0 {
		return
	}
	missing := 0
	for i, v := range x {
		if math.IsNaN(v) {
			missing++
		}
		if i >= w && math.IsNaN(x[i-w]) {
			missing--
		}
		if i >= w-1 && missing == 0 {
			fn(i, x[i-w+1:i+1])
		}
	}
}

// RollingMean is the trailing simple mean over w values. Positions before the
// window is full, or whose window holds a missing value, are missing.
func RollingMean(x []float64, w int) []float64 {
	out := nans(len(x))
	window(x, w, func(i int, win []float64) {
		out[i] = floats.Sum(win) / float64(w)
	})
	return out
}

// RollingMax and RollingMin follow RollingMean's missing rules.
func RollingMax(x []float64, w int) []float64 {
	out := nans(len(x))
	window(x, w, func(i int, win []float64) { out[i] = floats.Max(win) })
	return out
}

func RollingMin(x []float64, w int) []float64 {
	out := nans(len(x))
	window(x, w, func(i int, win []float64) { out[i] = floats.Min(win) })
	return out
}

// RollingPopStdDev is the trailing population standard deviation.
func RollingPopStdDev(x []float64, w int) []float64 {
	out := nans(len(x))
	window(x, w, func(i int, win []float64) {
		if w == 1 {
			out[i] = 0
			return
		}
		v := stat.Variance(win, nil) * float64(w-1) / float64(w)
		out[i] = math.Sqrt(math.Max(v, 0))
	})
	return out
}

// RollingMeanDev is the trailing mean absolute deviation around the window mean.
func RollingMeanDev(x []float64, w int) []float64 {
	out := nans(len(x))
	window(x, w, func(i int, win []float64) {
		m := stat.Mean(win, nil)
		var s float64
		for _, v := range win {
			s += math.Abs(v - m)
		}
		out[i] = s / float64(w)
	})
	return out
}
