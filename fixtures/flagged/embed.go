package flagged

import _ "embed"

// Sample flagged dataset: two family trees (grandparent -> parents -> children)
// used by tests.

//go:embed flagged.json
var JSON []byte
