// # internal/engine/moduleres/stdlib.go

package moduleres

import (
	_ "embed"
	"strings"
)

//go:embed stdlib/python.txt
var pythonStdlibData string

var pythonStdlib = map[string]bool{}

func init() {
	for _, line := range strings.Split(pythonStdlibData, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			pythonStdlib[line] = true
			// Add base name: e.g. urllib.request -> urllib
			parts := strings.Split(line, ".")
			pythonStdlib[parts[0]] = true
		}
	}
}

// IsStdlib reports whether the top-level component of a dotted module
// path names a standard library module.
func IsStdlib(module string) bool {
	if i := strings.IndexByte(module, '.'); i >= 0 {
		module = module[:i]
	}
	return pythonStdlib[module]
}

// IsBuiltin reports whether name is bound in the builtins module scope
// without any import.
func IsBuiltin(name string) bool {
	return pythonBuiltins[name]
}

var pythonBuiltins = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true, "bytearray": true,
	"bytes": true, "callable": true, "chr": true, "classmethod": true, "compile": true,
	"complex": true, "delattr": true, "dict": true, "dir": true, "divmod": true,
	"enumerate": true, "eval": true, "exec": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "globals": true, "hasattr": true,
	"hash": true, "help": true, "hex": true, "id": true, "input": true,
	"int": true, "isinstance": true, "issubclass": true, "iter": true, "len": true,
	"list": true, "locals": true, "map": true, "max": true, "memoryview": true,
	"min": true, "next": true, "object": true, "oct": true, "open": true,
	"ord": true, "pow": true, "print": true, "property": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true, "setattr": true,
	"slice": true, "sorted": true, "staticmethod": true, "str": true, "sum": true,
	"super": true, "tuple": true, "type": true, "vars": true, "zip": true,
	"BaseException": true, "BaseExceptionGroup": true, "Exception": true,
	"ArithmeticError": true, "AssertionError": true, "AttributeError": true,
	"BlockingIOError": true, "BrokenPipeError": true, "BufferError": true,
	"BytesWarning": true, "ChildProcessError": true, "ConnectionAbortedError": true,
	"ConnectionError": true, "ConnectionRefusedError": true, "ConnectionResetError": true,
	"DeprecationWarning": true, "EOFError": true, "EnvironmentError": true,
	"ExceptionGroup": true, "FileExistsError": true, "FileNotFoundError": true,
	"FloatingPointError": true, "FutureWarning": true, "GeneratorExit": true,
	"IOError": true, "ImportError": true, "ImportWarning": true,
	"IndentationError": true, "IndexError": true, "InterruptedError": true,
	"IsADirectoryError": true, "KeyError": true, "KeyboardInterrupt": true,
	"LookupError": true, "MemoryError": true, "ModuleNotFoundError": true,
	"NameError": true, "NotADirectoryError": true, "NotImplementedError": true,
	"OSError": true, "OverflowError": true, "PendingDeprecationWarning": true,
	"PermissionError": true, "ProcessLookupError": true, "RecursionError": true,
	"ReferenceError": true, "ResourceWarning": true, "RuntimeError": true,
	"RuntimeWarning": true, "StopAsyncIteration": true, "StopIteration": true,
	"SyntaxError": true, "SyntaxWarning": true, "SystemError": true,
	"SystemExit": true, "TabError": true, "TimeoutError": true, "TypeError": true,
	"UnboundLocalError": true, "UnicodeDecodeError": true, "UnicodeEncodeError": true,
	"UnicodeError": true, "UnicodeTranslateError": true, "UnicodeWarning": true,
	"UserWarning": true, "ValueError": true, "Warning": true, "ZeroDivisionError": true,
	"__import__": true,
}
