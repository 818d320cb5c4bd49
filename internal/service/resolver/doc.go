// Package resolver reads the version string every later stage is keyed by.
package resolver
