// Package feed binds comic query results to a scrollable list.
//
// A List holds the rows currently shown and turns row gestures into calls
// on the store or the Host. A Controller drives infinite scrolling over a
// Source (the paged feed or a single search result set). Neither type is safe
// for concurrent use: both are owned by the goroutine running a Loop, and
// queries issued by the Controller run on worker goroutines that post their
// results back to that Loop.
package feed
