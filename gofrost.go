// Package gofrost is a collection of small tools for quantifying and
// summarizing sequencing data. Each tool lives in its own package and is
// reached through the gofrost dispatcher in cmd/gofrost.
package gofrost

// Version is reported by the dispatcher and by each tool's --version.
const Version = "0.2.0"
