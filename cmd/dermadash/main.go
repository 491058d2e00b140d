// Command dermadash は皮膚病変診断ダッシュボードのクライアント。
package main

import (
	"context"
	"os"

	"github.com/hitoshi/dermadash/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
