// Command bdb inspects and edits bdb database files from the shell.
package main

func main() {
	Execute()
}
