package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はMongoDBからSupabaseへの移行を実行することを示す。
	CommandRun Command = "run"
	// CommandSchema は移行先スキーマを適用することを示す。
	CommandSchema Command = "schema"
	// CommandStatus はチェックポイントと移行先の行数を表示することを示す。
	CommandStatus Command = "status"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "schema":
		return CommandSchema
	case "status":
		return CommandStatus
	default:
		return CommandRun
	}
}
