package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe           Command = "serve"
	CommandCreateSuperuser Command = "createsuperuser"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// commands はサブコマンドの一覧。helpの出力順でもある。
var commands = []struct {
	cmd     Command
	aliases []string
	summary string
}{
	{CommandServe, nil, "start the HTTP API (default)"},
	{CommandCreateSuperuser, nil, "create a staff+superuser identity from SUPERUSER_EMAIL, SUPERUSER_USERNAME, SUPERUSER_PASSWORD"},
	{CommandHealthcheck, nil, "probe /healthcheck/ready on SERVER_PORT and exit non-zero unless it returns 200"},
	{CommandHelp, []string{"-h", "--help"}, "show this message"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空または未知のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	for _, c := range commands {
		if args[0] == string(c.cmd) {
			return c.cmd
		}
		for _, alias := range c.aliases {
			if args[0] == alias {
				return c.cmd
			}
		}
	}
	return CommandServe
}

// PrintUsage はサブコマンドの一覧をwに書き出す。
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: identitycore [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.cmd, c.summary)
	}
}
