//go:build !ledgerweaver_debug

package syntax

const debugAssertions = false

func assertf(string, ...any) {}
