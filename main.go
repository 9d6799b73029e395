package main

import "github.com/shouni/go-web-corpus/cmd"

func main() {
	cmd.Execute()
}
