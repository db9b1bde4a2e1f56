// presenced infers whether the user is in the kitchen from a camera feed,
// remembers where their spectacles were last seen, and answers voice and
// HTTP queries about both.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
