// Command clipsync-agent runs a device that captures the local clipboard and follows the
// live clip list of one user.
package main

var version = "dev"

func main() {
	Execute(version)
}
