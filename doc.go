// Package voodoo runs fragments of ECMAScript against records whose
// fields act as the fragments' variables, and reports every read,
// assignment, and deletion of those fields.
//
// The core code is in package 'core'.  Package 'loop' has the
// cooperative event loop that drives an Engine, 'observe' turns
// field accesses into events, 'store' keeps runs, and 'tools'
// renders them.  The command-line tool is in 'cmd/voodoo'.
package voodoo
