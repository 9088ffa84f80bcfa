// Package main is the entry point for the chatbot governance service.
package main

func main() {
	Execute()
}
