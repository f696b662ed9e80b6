package main

import "github.com/joncrangle/wechat-mcp/cmd"

func main() {
	cmd.Execute()
}
