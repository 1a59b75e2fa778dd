package checker

import (
	"fmt"
	"io"
)

// Option names understood by the checker
const (
	OptRun          = "run"
	OptAccept       = "acc"
	OptInclude      = "inc"
	OptAdd          = "add"
	OptIgnorePrompt = "igp"
	OptDescription  = "dsc"
	OptArgs         = "arg"
	OptConfig       = "cfg"
	OptDelete       = "del"
)

var allOptions = []string{
	OptRun,
	OptAccept,
	OptInclude,
	OptAdd,
	OptIgnorePrompt,
	OptDescription,
	OptArgs,
	OptConfig,
	OptDelete,
}

// PrintUsage writes the option reference to w
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "USAGE: check -%s: exe -%s: dir [-%s: args] [-%s: files] [-%s: files] [-%s: file] [-%s] [-%s] [-%s: descriptors]\n",
		OptRun, OptAccept, OptArgs, OptInclude, OptDelete, OptConfig, OptAdd, OptIgnorePrompt, OptDescription)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "-%s\tAn exe to run\n", OptRun)
	fmt.Fprintf(w, "-%s\tA directory containing acceptable outputs\n", OptAccept)
	fmt.Fprintf(w, "-%s\tA list of arguments to the exe\n", OptArgs)
	fmt.Fprintf(w, "-%s\tA list of files that should be included as output\n", OptInclude)
	fmt.Fprintf(w, "-%s\tA list of files that should be deleted before running\n", OptDelete)
	fmt.Fprintf(w, "-%s\tA test file with additional configuration\n", OptConfig)
	fmt.Fprintf(w, "-%s\tAdds the output of this run to set of acceptable outputs\n", OptAdd)
	fmt.Fprintf(w, "-%s\tIgnore output sent to the prompt by commands\n", OptIgnorePrompt)
	fmt.Fprintf(w, "-%s\tDescriptions of this test\n", OptDescription)
}
