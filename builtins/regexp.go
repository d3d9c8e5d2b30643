package builtins

import (
	"github.com/dlclark/regexp2"

	"github.com/emberlang/ember/exception"
	"github.com/emberlang/ember/gcheap"
	"github.com/emberlang/ember/value"
)

// RegExp natives (0x0Axx), backed by dlclark/regexp2 rather than Go's
// RE2-based stdlib `regexp`: a scripting VM's `RegExp` literal is expected
// to accept JS-flavored patterns, including backreferences and lookaround,
// which RE2 cannot express. `HeapRegExp.Handle` is opaque to gcheap, so
// any compiled representation is legal as long as Compile/Test/Match
// round-trip.
const (
	ReCompile NativeID = RangeRegExp + iota
	ReTest
	ReMatch
	ReReplace
	ReSource
)

var regexpFuncs = []Func{
	ReCompile % rangeSize: reCompile,
	ReTest % rangeSize:    reTest,
	ReMatch % rangeSize:   reMatch,
	ReReplace % rangeSize: reReplace,
	ReSource % rangeSize:  reSource,
}

func asRegExp(v value.Value) (*gcheap.HeapRegExp, bool) {
	if !v.IsPtr() {
		return nil, false
	}
	r, isRe := gcheap.ObjectFor(v).(*gcheap.HeapRegExp)
	return r, isRe
}

// toRegexp2Options maps the flag-string convention ("i" case
// insensitive, "m" multiline, "s" dot-matches-newline) onto regexp2's
// bitmask options.
func toRegexp2Options(flags string) regexp2.RegexOptions {
	var opts regexp2.RegexOptions
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		}
	}
	return opts
}

func reCompile(ctx *Context, taskID int64, args []value.Value) Result {
	pat, isStr := asString(args[0])
	if !isStr {
		return fault(exception.KindTypeError, "regexp.compile pattern must be a string")
	}
	flags := ""
	if len(args) > 1 {
		f, flagIsStr := asString(args[1])
		if !flagIsStr {
			return fault(exception.KindTypeError, "regexp.compile flags must be a string")
		}
		flags = f.String()
	}
	compiled, err := regexp2.Compile(pat.String(), toRegexp2Options(flags))
	if err != nil {
		return fault(exception.KindRuntimeError, "invalid regular expression: "+err.Error())
	}
	return okResult(ctx.Heap.Allocate(&gcheap.HeapRegExp{Pattern: pat.String(), Flags: flags, Handle: compiled}))
}

func reTest(ctx *Context, taskID int64, args []value.Value) Result {
	re, isRe := asRegExp(args[0])
	if !isRe {
		return fault(exception.KindTypeError, "regexp.test receiver is not a compiled regexp")
	}
	s, isStr := asString(args[1])
	if !isStr {
		return fault(exception.KindTypeError, "regexp.test argument must be a string")
	}
	compiled := re.Handle.(*regexp2.Regexp)
	m, err := compiled.MatchString(s.String())
	if err != nil {
		return fault(exception.KindRuntimeError, "regexp match error: "+err.Error())
	}
	return okResult(value.Bool(m))
}

func reMatch(ctx *Context, taskID int64, args []value.Value) Result {
	re, isRe := asRegExp(args[0])
	if !isRe {
		return fault(exception.KindTypeError, "regexp.match receiver is not a compiled regexp")
	}
	s, isStr := asString(args[1])
	if !isStr {
		return fault(exception.KindTypeError, "regexp.match argument must be a string")
	}
	compiled := re.Handle.(*regexp2.Regexp)
	m, err := compiled.FindStringMatch(s.String())
	if err != nil {
		return fault(exception.KindRuntimeError, "regexp match error: "+err.Error())
	}
	if m == nil {
		return okResult(value.Null)
	}
	groups := m.Groups()
	elems := make([]value.Value, len(groups))
	for i, g := range groups {
		elems[i] = ctx.Heap.Allocate(gcheap.NewString(g.String()))
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewArray(0, elems)))
}

func reReplace(ctx *Context, taskID int64, args []value.Value) Result {
	re, isRe := asRegExp(args[0])
	if !isRe {
		return fault(exception.KindTypeError, "regexp.replace receiver is not a compiled regexp")
	}
	s, sIsStr := asString(args[1])
	repl, replIsStr := asString(args[2])
	if !sIsStr || !replIsStr {
		return fault(exception.KindTypeError, "regexp.replace arguments must be strings")
	}
	compiled := re.Handle.(*regexp2.Regexp)
	out, err := compiled.Replace(s.String(), repl.String(), -1, -1)
	if err != nil {
		return fault(exception.KindRuntimeError, "regexp replace error: "+err.Error())
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(out)))
}

func reSource(ctx *Context, taskID int64, args []value.Value) Result {
	re, isRe := asRegExp(args[0])
	if !isRe {
		return fault(exception.KindTypeError, "regexp.source receiver is not a compiled regexp")
	}
	return okResult(ctx.Heap.Allocate(gcheap.NewString(re.Pattern)))
}
