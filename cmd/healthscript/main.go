// cmd/healthscript/main.go
package main

import (
	"os"

	"github.com/Corphon/HealthScriptMCP/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
