/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package graph is the core package for nanograd: a scalar valued, reverse-mode automatic
// differentiation engine.
//
// The main elements in the package are:
//
//   - Node: one scalar quantity. It holds its forward value, its accumulated gradient and the
//     (at most two) input nodes it was computed from. Nodes are created from literals (Const),
//     as trainable leaves (Parameter) or by the ops (Add, Mul, Pow, Relu, etc.).
//
//   - Ops: every op computes its forward value immediately, and records in the new node its
//     OpType, which selects the VJP (the local backward rule) used during backpropagation.
//     Operands are never mutated. Plain numbers are promoted to Const nodes, see Operand.
//
//   - Backpropagate: given a root node, it computes the topological order of everything the root
//     depends on and runs each node's backward rule exactly once, in reverse order, accumulating
//     into the gradients of the inputs.
//
// There is no separate "graph" object: the graph is implicitly defined by the inputs of the nodes,
// and it is released by the garbage collector once the root is no longer referenced.
//
// ## Error Handling
//
// Ops panic (with an error carrying a stack-trace) instead of
// returning errors, so that expressions can be written naturally. The errors thrown are
// *UnsupportedOperandError and *GraphIntegrityError. To convert them back to an error use
// `exceptions.TryCatch[error]`:
//
//	err := exceptions.TryCatch[error](func() { y = PowAny(x, z) })
//	var opErr *graph.UnsupportedOperandError
//	if errors.As(err, &opErr) { ... }
//
// ## Gradients Accumulate
//
// Backpropagate seeds the root gradient with 1 but doesn't reset any other gradient: if nodes are
// reused across passes (typically trainable parameters), call ZeroGradients on them before each pass,
// otherwise the new gradients are added to the old ones.
//
// Nothing in this package is safe for concurrent use: build and backpropagate each graph from one
// goroutine. Independent graphs (that don't share nodes) can be used concurrently.
package graph
