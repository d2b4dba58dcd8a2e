// Command x402call calls a payment-gated API from the terminal, paying 402
// challenges with a local key and following asynchronous jobs.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
