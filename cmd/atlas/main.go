/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package main

import "github.com/tpotmap/atlas/pkg/cli"

func main() {
	cli.Execute()
}
