// Package models holds the records shared between the agent runtime, the
// automation store and the HTTP surface.
package models
