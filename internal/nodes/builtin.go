package nodes

// BuiltinRegistry constructs a registry populated with every built-in
// library handler.
func BuiltinRegistry() (*Registry, error) {
	filter, err := NewFilterHandler()
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	r.MustRegister(
		NewHTTPRequestHandler(),
		NewJQTransformHandler(),
		NewExprTransformHandler(),
		NewDelayHandler(),
		NewLogHandler(),
		filter,
	)
	return r, nil
}
