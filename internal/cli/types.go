package cli

const (
	modeOverwrite  = "overwrite"
	modeOptimistic = "optimistic"
	modeLease      = "lease"

	defaultParallel = 4
)

type listOptions struct {
	Container string
}

type uploadOptions struct {
	Mode     string
	IfMatch  string
	Parallel int
}

type getOptions struct {
	Output string
}
