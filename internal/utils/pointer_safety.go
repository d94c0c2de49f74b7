package utils

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// NonEmpty reports whether a string pointer is set to a non empty value.
func NonEmpty(v *string) bool {
	return v != nil && *v != ""
}
