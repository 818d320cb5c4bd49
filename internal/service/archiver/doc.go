// Package archiver compresses the assembled output directory into the release archive.
package archiver
