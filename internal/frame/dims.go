package frame

// OutputDims computes the output frame dimensions for a source, honoring an
// optional requested size, capping the larger side at maxDim while preserving
// aspect ratio, and rounding both sides down to even numbers as required by
// block-based codecs.
func OutputDims(srcW, srcH, reqW, reqH, maxDim int) (int, int) {
	w, h := srcW, srcH

	switch {
	case reqW > 0 && reqH > 0:
		w, h = reqW, reqH
	case reqW > 0:
		w = reqW
		h = scaleBy(srcH, reqW, srcW)
	case reqH > 0:
		h = reqH
		w = scaleBy(srcW, reqH, srcH)
	}

	if larger := max(w, h); maxDim > 0 && larger > maxDim {
		w = scaleBy(w, maxDim, larger)
		h = scaleBy(h, maxDim, larger)
	}

	return even(w), even(h)
}

// scaleBy returns v * num / den rounded to nearest, at least 1.
func scaleBy(v, num, den int) int {
	if den == 0 {
		return 1
	}
	scaled := (v*num + den/2) / den
	if scaled < 1 {
		return 1
	}
	return scaled
}

// even rounds down to an even number, never below 2.
func even(n int) int {
	n -= n % 2
	if n < 2 {
		return 2
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
