// Command cdfs packs, unpacks, lists, and verifies CDFS sector-addressed
// archives.
package main

func main() {
	execute()
}
