package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/eduramirezh/adk-go/internal/llm"
)

func runModels(args []string, stdout, stderr io.Writer) int {
	var registryPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-registry", "--registry":
			i++
			if i >= len(args) {
				fmt.Fprintln(stderr, "-registry requires a value")
				return exitUsage
			}
			registryPath = args[i]
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	reg := llm.DefaultRegistry()
	if registryPath != "" {
		var err error
		reg, err = llm.LoadRegistry(registryPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitError
		}
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tPROVIDER\tCONTEXT\tMAX OUTPUT\tJSON\tTHINKING")
	for _, info := range reg.Models() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%t\n",
			info.Pattern, info.Provider, info.ContextWindow, info.MaxOutputTokens,
			info.SupportsJSONMode, info.SupportsThinking)
	}
	tw.Flush()
	return exitOK
}
