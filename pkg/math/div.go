package math

func DivRoundUp[T Integer](a, b T) T {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

// AlignUp rounds a up to the next multiple of align.
func AlignUp[T Integer](a, align T) T {
	return DivRoundUp(a, align) * align
}
