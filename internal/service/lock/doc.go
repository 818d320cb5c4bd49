// Package lock guards a checkout against concurrent pipeline runs with a marker file.
package lock
