// Package sinks implements progress consumers: a structured log sink and a
// console progress bar.
package sinks
