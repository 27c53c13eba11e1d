// Command sessiongw runs and exercises the session gateway.
//
//	sessiongw serve --config gateway.toml
//	sessiongw send --gateway 127.0.0.1:9090 --session-id 7 --player alice --player bob
//	sessiongw sink --listen :5001
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
