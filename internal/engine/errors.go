package engine

import "errors"

// errInvalidUTF8 marks a raw-mode payload whose percent-decoded bytes are
// not valid UTF-8. Per §7's taxonomy this is a protocol parse error: logged
// and the offending action is dropped.
var errInvalidUTF8 = errors.New("engine: percent-decoded payload is not valid UTF-8")
