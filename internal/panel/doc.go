// Package panel holds the operator panel: the state shown to the operator,
// the task queue that is the only writer of that state, and the embedded
// web page that renders it.
//
// Worker goroutines never touch the model directly. They post tasks:
//
//	queue.Post(func(m *panel.Model) { m.SetActivity(panel.ActivityIdle) })
//
// The main goroutine drains the queue with Run, applies each task, and
// broadcasts the resulting state on the "panel.state" websocket channel.
package panel
