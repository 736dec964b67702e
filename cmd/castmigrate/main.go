// Command castmigrate はMongoDBのデータをSupabase（認証 + PostgreSQL）へ移行する。
//
// 使い方:
//
//	castmigrate [run|schema|status]
//
// 設定はすべて環境変数から読み込む。
package main

import (
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/hitoshi/castmigrate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		slog.Error("castmigrate failed",
			slog.String("error", err.Error()),
			slog.String("stack", string(debug.Stack())),
		)
		os.Exit(1)
	}
}
