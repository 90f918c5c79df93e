package main

import (
	"os"
	"strings"

	imgforge "github.com/imgforge/imgforge/internal/apps/imgforge/cmds"
	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/runtime"
)

func main() {
	logs.SetComponent(detectComponent("host"))

	var execErr error

	rt := runtime.NewHostRuntime()
	defer rt.Finalize("imgforge", "Type 'imgforge help' to get help.", &execErr)

	execErr = imgforge.Execute(rt)
}

func detectComponent(base string) string {
	if len(os.Args) > 1 && len(os.Args[1]) > 0 && os.Args[1][0] != '-' {
		return base + ":" + strings.Join(os.Args[1:], " ")
	}
	return base
}
