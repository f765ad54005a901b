// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// reflexc is a standalone compiler CLI, mirroring the shape of
// cmd/sneller: a single static binary that reads inputs from flags and
// files rather than a long-running daemon. It compiles one query dump
// against a runtime-library module and writes the linked, executable
// WASM module the result can be run with (by package worker).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/compiler"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
)

func main() {
	runtimePath := flag.String("runtime", "", "path to the runtime-library WASM module (required)")
	queryPath := flag.String("query", "", "path to a query arena dump, see cmd/reflexc/query.go (required)")
	outPath := flag.String("o", "", "output path for the compiled module (default: <query>.wasm)")
	entryName := flag.String("entry", "run", "exported name of the compiled query's entry point")
	unoptimized := flag.Bool("unoptimized", false, "set compiler.Options.Unoptimized (no pass reads it; the output is unchanged)")
	memoize := flag.Bool("memoize-lambdas", false, "wrap compiled lambdas in a memoization layer")
	flag.Parse()

	logger := log.New(os.Stderr, "reflexc: ", 0)

	if *runtimePath == "" || *queryPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	runtimeModule, err := os.ReadFile(*runtimePath)
	if err != nil {
		logger.Fatalf("reading runtime module: %s", err)
	}

	src, root, err := loadQueryArena(*queryPath)
	if err != nil {
		logger.Fatalf("reading query: %s", err)
	}

	out, err := compileQuery(src, root, runtimeModule, compileOptions(*unoptimized, *memoize), *entryName)
	if err != nil {
		logger.Fatalf("%s", err)
	}

	dst := *outPath
	if dst == "" {
		dst = *queryPath + ".wasm"
	}
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		logger.Fatalf("writing %s: %s", dst, err)
	}
	logger.Printf("wrote %s (%d bytes)", dst, len(out))
}

func compileOptions(unoptimized, memoize bool) *compiler.Options {
	return &compiler.Options{
		Unoptimized:    unoptimized,
		MemoizeLambdas: memoize,
	}
}

// compileQuery runs the full source-to-module pipeline: compile the
// term rooted at root to IL (package compiler), then lower the
// resulting block plus every hoisted function into a module linked
// against runtimeModule (package wasmgen).
func compileQuery(src *arena.Arena, root arena.Pointer, runtimeModule []byte, opts *compiler.Options, entryName string) ([]byte, error) {
	image := arena.New(arena.NewHeapBacking())
	state := compiler.NewCompilerState(image)

	body, err := compiler.Compile(src, root, term.ArgStrict, state, opts)
	if err != nil {
		return nil, fmt.Errorf("compiling query: %w", err)
	}

	hoisted := make([]wasmgen.HoistedFunction, len(state.Functions()))
	for i, fn := range state.Functions() {
		hoisted[i] = wasmgen.HoistedFunction{ID: fn.ID, Sig: fn.Sig, Body: fn.Body}
	}

	imageBase, err := runtimeImageBase(runtimeModule)
	if err != nil {
		return nil, fmt.Errorf("inspecting runtime module: %w", err)
	}

	entries := []wasmgen.EntryPoint{{Name: entryName, Body: body}}
	out, err := wasmgen.Generate(runtimeModule, hoisted, entries, image.Bytes(), imageBase)
	if err != nil {
		return nil, fmt.Errorf("generating module: %w", err)
	}
	return out, nil
}
