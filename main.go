// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/lambdapack/lambdapack/cmd/lambdapack"

func main() {
	cmd.Execute()
}
