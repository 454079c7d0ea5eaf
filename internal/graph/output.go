package graph

type OutputKind uint8

const (
	OutputChunk OutputKind = iota
	OutputSourceMap
	OutputHMRPatch
)

func (kind OutputKind) String() string {
	switch kind {
	case OutputSourceMap:
		return "sourcemap"
	case OutputHMRPatch:
		return "hmr-patch"
	}
	return "chunk"
}

// One generated file. Plugins may rewrite the contents or drop files in the
// "GenerateBundle" hook before anything is written.
type OutputFile struct {
	AbsPath  string
	Contents []byte
	Kind     OutputKind

	// The source index of the entry point for chunks, and of the changed
	// modules for hot patches
	EntryPoint uint32
}
