package main

import "github.com/siftlab/sift/cmd"

func main() {
	cmd.Execute()
}
