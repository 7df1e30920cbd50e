//go:build ledgerweaver_debug

package syntax

import "fmt"

const debugAssertions = true

func assertf(format string, args ...any) {
	panic(assertionFailure(fmt.Sprintf("syntax: assertion failed: "+format, args...)))
}
