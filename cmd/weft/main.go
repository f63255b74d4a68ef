// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Weft is the workflow orchestration CLI: it validates, plans, and runs
// agent workflows from YAML definitions.
package main

func main() {
	Execute()
}
