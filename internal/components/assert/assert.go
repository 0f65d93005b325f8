package assert

func NotNil(value any, name string) {
	if value == nil {
		panic("expected value to be not nil: " + name)
	}
}
