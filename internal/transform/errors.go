package transform

import (
	"fmt"
	"strings"
)

// DuplicateKeyError reports natural keys whose staged rows disagree while
// the reject duplicate policy is in effect.
type DuplicateKeyError struct {
	Table string
	Keys  []int32
}

func (e *DuplicateKeyError) Error() string {
	keys := make([]string, len(e.Keys))
	for i, k := range e.Keys {
		keys[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("%s: conflicting staged rows for natural keys %s",
		e.Table, strings.Join(keys, ", "))
}
