// Package exception defines the handler-stack record and stack-trace
// attachment contract used by the VM's unwind protocol. It holds pure
// data only — the unwind algorithm itself lives in package vm, since it
// must walk a task's operand stack, frame list, and held-mutex set, all
// of which are vm/task concerns.
package exception

import "fmt"

// Handler is a record on a task's handler stack pairing catch/finally
// offsets with snapshots taken at Try-time. Offset == -1
// means "absent" for CatchOffset/FinallyOffset.
type Handler struct {
	CatchOffset   int
	FinallyOffset int
	StackDepth    int // operand stack depth snapshot
	FrameCount    int // call-frame count snapshot
	MutexCount    int // held-mutex count snapshot
}

const NoOffset = -1

// Frame is one resolved call-frame entry used for stack-trace strings and
// the profiler's sampling hook.
type Frame struct {
	FunctionName string
	SourceFile   string
	Line         int
	Column       int
}

// FormatTrace renders frames as the multi-line string written into an
// Error-classed object's conventional `stack` field (field index 2 by
// convention), most-recent call first.
func FormatTrace(frames []Frame) string {
	s := ""
	for i, f := range frames {
		if i > 0 {
			s += "\n"
		}
		if f.SourceFile != "" {
			s += fmt.Sprintf("  at %s (%s:%d:%d)", f.FunctionName, f.SourceFile, f.Line, f.Column)
		} else {
			s += fmt.Sprintf("  at %s", f.FunctionName)
		}
	}
	return s
}

// ErrorClassNames lists the class names the interpreter recognizes as
// Error-classed for stack-trace attachment purposes; any
// subclass of these (walked through the class parent chain) also
// qualifies.
var ErrorClassNames = map[string]bool{
	"Error":            true,
	"TypeError":        true,
	"RangeError":       true,
	"ReferenceError":   true,
	"SyntaxError":      true,
	"AssertionError":   true,
	"ChannelClosedError": true,
}
