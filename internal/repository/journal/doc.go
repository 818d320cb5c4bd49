// Package journal persists the record of the last pipeline run.
package journal
