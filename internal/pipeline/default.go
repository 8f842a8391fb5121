package pipeline

import _ "embed"

//go:embed schemas/default.yml
var defaultPipeline []byte

// DefaultFileName is the pipeline file looked up in the workspace root.
const DefaultFileName = ".piperun.yml"

// Default returns the built-in build/test/deploy pipeline.
func Default() []byte {
	return append([]byte(nil), defaultPipeline...)
}
