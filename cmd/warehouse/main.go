// Command warehouse builds the clickstream star schema from raw events and
// serves metrics over it.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
