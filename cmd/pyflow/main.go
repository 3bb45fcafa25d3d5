// Command pyflow translates pandas/numpy/sklearn scripts into Flow DAGs.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:]))
}
