// Command ensemble orchestrates parallel agent subprocesses across five
// execution modes: single, parallel, chain, race, and team.
package main

func main() {
	Execute()
}
