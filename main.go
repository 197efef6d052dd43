package main

import "github.com/helloscan/helloscan/cmd/helloscan"

func main() { helloscan.Execute() }
