package main

import "github.com/saurav61091/e-Prabandhan-sub003/cmd"

func main() {
	cmd.Execute()
}
