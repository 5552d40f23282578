package riptidelog

import "fmt"

// Banner and Section are cosmetic console art for the demo binaries. They
// are deliberately not used by the core — only by cmd/riptide-server and
// cmd/riptide-client — since the core's own output goes entirely through
// the slog.Logger returned by New.

const border = "═══════════════════════════════════════════════════════════"

// Section prints a boxed section header.
func Section(title string) {
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-57s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application title and version above a divider.
func Banner(title, version string) {
	fmt.Printf("\n%s\n%s v%s\n%s\n\n", border, title, version, border)
}
