// Package publisher creates releases on GitHub and attaches the archive to them.
package publisher
