// Reaper - tag-driven EC2 lifecycle enforcement.
// Tag it or lose it.
package main

func main() {
	Execute()
}
